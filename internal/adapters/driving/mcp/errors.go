// Package mcp provides an MCP (Model Context Protocol) server adapter for patentgov.
// It lets AI assistants query promoted collections and inspect their gate reports.
package mcp

import "errors"

// ErrMissingEvaluator is returned when the evaluator is not provided.
var ErrMissingEvaluator = errors.New("mcp: evaluator is required")

// ErrMissingBuildService is returned when the build service is not provided.
var ErrMissingBuildService = errors.New("mcp: build service is required")
