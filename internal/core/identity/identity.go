// Package identity derives the deterministic identifiers used across the
// pipeline: asset, publication, chunk, embedding version and vector.
//
// Every function here is pure and safe for concurrent use. Identifiers are
// never derived from partial input: a missing component returns a
// *MissingInputError.
package identity

import (
	"crypto/sha1" //nolint:gosec // content address, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

// Scope names the identifier being derived.
type Scope string

// Identifier scopes.
const (
	ScopeAsset            Scope = "asset"
	ScopeDocument         Scope = "document"
	ScopeChunk            Scope = "chunk"
	ScopeEmbeddingVersion Scope = "embedding_version"
	ScopeVector           Scope = "vector"
	ScopeQuerySet         Scope = "query_set"
)

// MissingInputError names the scope and field that were absent.
type MissingInputError struct {
	Scope Scope
	Field string
}

// Error implements error.
func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s id: missing %s", e.Scope, e.Field)
}

// Unwrap allows errors.Is(err, domain.ErrMissingInput).
func (e *MissingInputError) Unwrap() error {
	return domain.ErrMissingInput
}

func missing(scope Scope, field string) error {
	return &MissingInputError{Scope: scope, Field: field}
}

// Layer is the logical layer tag folded into chunk ids.
type Layer string

// Chunk layers.
const (
	LayerClaim1    Layer = "claim1"
	LayerClaimsSet Layer = "claims_set"
	LayerSpec      Layer = "spec"
)

// LayerFor maps a chunk type onto its layer tag.
func LayerFor(t domain.ChunkType) (Layer, error) {
	switch t {
	case domain.ChunkTypeClaim1:
		return LayerClaim1, nil
	case domain.ChunkTypeClaimSet:
		return LayerClaimsSet, nil
	case domain.ChunkTypeSpec:
		return LayerSpec, nil
	default:
		return "", fmt.Errorf("%w: unknown chunk type %q", domain.ErrInvalidInput, t)
	}
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec // content address
	return hex.EncodeToString(sum[:])
}

// AssetID is the cross-system anchor for a family.
func AssetID(familyID string) (string, error) {
	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return "", missing(ScopeAsset, "family_id")
	}
	return sha1Hex("family|" + familyID), nil
}

// NormalizePublication upper-cases a publication number and removes whitespace.
func NormalizePublication(pub string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(pub) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// DocID identifies a publication.
func DocID(publication string) (string, error) {
	norm := NormalizePublication(publication)
	if norm == "" {
		return "", missing(ScopeDocument, "publication_number")
	}
	return sha1Hex("pub|" + norm), nil
}

// ChunkID identifies a chunk by document, layer and span start.
func ChunkID(docID string, spanStart int, layer Layer) (string, error) {
	if docID == "" {
		return "", missing(ScopeChunk, "doc_id")
	}
	if layer == "" {
		return "", missing(ScopeChunk, "layer")
	}
	if spanStart < 0 {
		return "", fmt.Errorf("%w: negative span start %d", domain.ErrInvalidInput, spanStart)
	}
	return sha1Hex("chunk|" + docID + "|" + string(layer) + "|" + strconv.Itoa(spanStart)), nil
}

const (
	keyChunkPolicy = "chunk_policy"
	keyNorm        = "norm"
	keySpecControl = "spec_control"
)

// EmbeddingVersionID renders the structured, human-readable version id
// <model>@<revision>#chunk_policy=<v>#norm=<v>#spec_control=<v>.
func EmbeddingVersionID(v domain.EmbeddingVersion) (string, error) {
	fields := []struct {
		name, value string
	}{
		{"model", v.Model},
		{"revision", v.Revision},
		{keyChunkPolicy, v.ChunkPolicy},
		{"normalization", v.Normalization},
		{keySpecControl, v.SpecControl},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return "", missing(ScopeEmbeddingVersion, f.name)
		}
		if strings.Contains(f.value, "#") {
			return "", fmt.Errorf("%w: %s contains '#'", domain.ErrInvalidInput, f.name)
		}
	}
	if strings.Contains(v.Model, "@") {
		return "", fmt.Errorf("%w: model contains '@'", domain.ErrInvalidInput)
	}
	return fmt.Sprintf("%s@%s#%s=%s#%s=%s#%s=%s",
		v.Model, v.Revision,
		keyChunkPolicy, v.ChunkPolicy,
		keyNorm, v.Normalization,
		keySpecControl, v.SpecControl,
	), nil
}

// ParseEmbeddingVersionID reverses EmbeddingVersionID.
func ParseEmbeddingVersionID(id string) (domain.EmbeddingVersion, error) {
	var v domain.EmbeddingVersion
	parts := strings.Split(id, "#")
	if len(parts) != 4 {
		return v, fmt.Errorf("%w: malformed embedding version id %q", domain.ErrInvalidInput, id)
	}
	model, revision, ok := strings.Cut(parts[0], "@")
	if !ok {
		return v, fmt.Errorf("%w: embedding version id %q has no revision", domain.ErrInvalidInput, id)
	}
	v.Model = model
	v.Revision = revision

	targets := []struct {
		key string
		dst *string
	}{
		{keyChunkPolicy, &v.ChunkPolicy},
		{keyNorm, &v.Normalization},
		{keySpecControl, &v.SpecControl},
	}
	for i, t := range targets {
		key, value, ok := strings.Cut(parts[i+1], "=")
		if !ok || key != t.key {
			return v, fmt.Errorf("%w: embedding version id %q: expected %s=", domain.ErrInvalidInput, id, t.key)
		}
		*t.dst = value
	}

	// Round-trip guards against empty components.
	if _, err := EmbeddingVersionID(v); err != nil {
		return domain.EmbeddingVersion{}, err
	}
	return v, nil
}

// VectorID is the composite key family#chunk_type#evid.
func VectorID(familyID string, chunkType domain.ChunkType, evid string) (string, error) {
	if familyID == "" {
		return "", missing(ScopeVector, "family_id")
	}
	if chunkType == "" {
		return "", missing(ScopeVector, "chunk_type")
	}
	if evid == "" {
		return "", missing(ScopeVector, "embedding_version_id")
	}
	if strings.Contains(familyID, "#") {
		return "", fmt.Errorf("%w: family_id contains '#'", domain.ErrInvalidInput)
	}
	if !chunkType.IsValid() {
		return "", fmt.Errorf("%w: unknown chunk type %q", domain.ErrInvalidInput, chunkType)
	}
	return familyID + "#" + string(chunkType) + "#" + evid, nil
}

// ParseVectorID splits a vector id into its components.
func ParseVectorID(id string) (familyID string, chunkType domain.ChunkType, evid string, err error) {
	parts := strings.SplitN(id, "#", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: malformed vector id %q", domain.ErrInvalidInput, id)
	}
	chunkType = domain.ChunkType(parts[1])
	if !chunkType.IsValid() {
		return "", "", "", fmt.Errorf("%w: vector id %q has unknown chunk type", domain.ErrInvalidInput, id)
	}
	return parts[0], chunkType, parts[2], nil
}

// FamilySetHash hashes a family-id set independent of order and duplicates.
func FamilySetHash(ids []string) string {
	uniq := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)
	sum := sha256.Sum256([]byte(strings.Join(uniq, "\n")))
	return hex.EncodeToString(sum[:])
}

// QuerySetHash freezes an ordered query list. Order matters.
func QuerySetHash(queries []domain.Query) (string, error) {
	if len(queries) == 0 {
		return "", missing(ScopeQuerySet, "queries")
	}
	data, err := json.Marshal(queries)
	if err != nil {
		return "", fmt.Errorf("encoding queries: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// WorkspaceName encodes an embedding version id as a single path segment.
func WorkspaceName(evid string) string {
	return url.PathEscape(evid)
}

// ParseWorkspaceName decodes a path segment produced by WorkspaceName.
func ParseWorkspaceName(name string) (string, error) {
	evid, err := url.PathUnescape(name)
	if err != nil {
		return "", fmt.Errorf("%w: workspace name %q: %v", domain.ErrInvalidInput, name, err)
	}
	return evid, nil
}
