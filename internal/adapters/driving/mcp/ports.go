package mcp

import (
	"github.com/custodia-labs/patentgov/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Evaluator answers queries against promoted collections.
	Evaluator driving.Evaluator

	// Builds lists and verifies promoted collections.
	Builds driving.BuildService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Evaluator == nil {
		return ErrMissingEvaluator
	}
	if p.Builds == nil {
		return ErrMissingBuildService
	}
	return nil
}
