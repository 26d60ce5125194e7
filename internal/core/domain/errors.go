package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Input integrity errors.

	// ErrMissingInput indicates a required input for derivation or chunking is absent.
	// Identifiers are never derived from partial inputs.
	ErrMissingInput = errors.New("missing required input")

	// ErrNoClaimBoundary indicates no claim boundary could be detected.
	ErrNoClaimBoundary = errors.New("no claim boundary found")

	// Symmetry errors.

	// ErrSymmetry indicates the chunk-type populations are not family-set identical.
	ErrSymmetry = errors.New("chunk set symmetry violated")

	// Build errors.

	// ErrGateFailed indicates one or more gates failed.
	ErrGateFailed = errors.New("gate failed")

	// ErrVectorIDCollision indicates a vector id was written twice.
	// This is a fatal integrity violation.
	ErrVectorIDCollision = errors.New("vector id collision")

	// ErrBuildInProgress indicates another build holds the embedding version.
	ErrBuildInProgress = errors.New("build in progress for embedding version")

	// ErrEmbedFailed indicates the embedding function failed for a chunk.
	ErrEmbedFailed = errors.New("embedding failed")

	// ErrInvalidTransition indicates an illegal build status transition.
	ErrInvalidTransition = errors.New("invalid build status transition")

	// ErrNotPromoted indicates a collection has no success marker.
	ErrNotPromoted = errors.New("collection not promoted")

	// Evaluation errors.

	// ErrQuerySetTampered indicates a frozen query set no longer matches its hash.
	ErrQuerySetTampered = errors.New("query set hash mismatch")
)
