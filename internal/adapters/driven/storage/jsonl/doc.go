// Package jsonl reads and writes the pipeline's line-delimited files:
// text records, chunk sets, frozen query sets and evaluation runs.
//
// Query sets may also be YAML; the format is chosen by file extension.
package jsonl
