// Package domain defines the core business entities for patentgov.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - TextRecord: A validated patent text record from acquisition
//   - Chunk: One semantic unit of a family (claim_1, claim_set, spec)
//   - ChunkSet: The three chunk-type populations of a run
//   - Manifest: The audit record of an embedding build
//   - GateReport: Ordered, AND-combined hard-gate results
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
