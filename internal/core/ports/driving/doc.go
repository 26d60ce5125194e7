// Package driving defines the operations the CLI and MCP adapters call:
// chunk generation, governed builds and retrieval evaluation.
//
// Implementations live in internal/core/services.
package driving
