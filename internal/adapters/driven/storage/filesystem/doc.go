// Package filesystem implements driven.CollectionStore on a local directory tree.
//
// Layout under the root:
//
//	staging/<escaped-evid>/<run-id>/     workspace being built
//	    collection.db                    SQLite vectors
//	    manifest.json                    build manifest
//	    _SUCCESS | _PARTIAL              markers
//	builds/<escaped-evid>/<run-id>/      promoted workspaces
//	production/<escaped-evid>.json       pointer to the live build
//
// Promotion renames the workspace into builds/ and then replaces the
// pointer file with a temp file, fsync and rename. A reader resolving the
// pointer sees the old build or the new one, never a mix.
package filesystem
