package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/patentgov/internal/core/domain"
)

const defaultTopK = 10

// EvaluateQueryInput is the input schema for the evaluate_query tool.
type EvaluateQueryInput struct {
	Query              string `json:"query" jsonschema:"free-text query, e.g. a claim-like sentence"`
	EmbeddingVersionID string `json:"embedding_version_id,omitempty" jsonschema:"collection to search; may be omitted when exactly one collection is promoted"`
	TopK               int    `json:"top_k,omitempty" jsonschema:"number of families to return (default 10)"`
}

// EvaluateQueryOutput is the output schema for the evaluate_query tool.
type EvaluateQueryOutput struct {
	EmbeddingVersionID string             `json:"embedding_version_id"`
	Hits               []domain.FamilyHit `json:"hits"`
	Count              int                `json:"count"`
}

// VerifyInput is the input schema for the verify_collection tool.
type VerifyInput struct {
	EmbeddingVersionID string `json:"embedding_version_id" jsonschema:"embedding version id of the promoted collection"`
}

// VerifyOutput is the output schema for the verify_collection tool.
type VerifyOutput struct {
	Passed bool                `json:"passed"`
	Gates  []domain.GateResult `json:"gates"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "evaluate_query",
		Description: "Search a promoted patent collection and return the top families",
	}, s.handleEvaluateQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "verify_collection",
		Description: "Re-run the promotion gates against a promoted collection",
	}, s.handleVerify)
}

// handleEvaluateQuery handles the evaluate_query tool invocation.
func (s *Server) handleEvaluateQuery(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input EvaluateQueryInput,
) (*mcp.CallToolResult, EvaluateQueryOutput, error) {
	topK := input.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	col, err := s.resolveCollection(ctx, input.EmbeddingVersionID)
	if err != nil {
		return nil, EvaluateQueryOutput{}, err
	}

	hits, err := s.ports.Evaluator.Query(ctx, col, input.Query, topK)
	if err != nil {
		return nil, EvaluateQueryOutput{}, err
	}

	return nil, EvaluateQueryOutput{
		EmbeddingVersionID: col.EmbeddingVersionID,
		Hits:               hits,
		Count:              len(hits),
	}, nil
}

// handleVerify handles the verify_collection tool invocation.
func (s *Server) handleVerify(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input VerifyInput,
) (*mcp.CallToolResult, VerifyOutput, error) {
	report, err := s.ports.Builds.Verify(ctx, input.EmbeddingVersionID)
	if report == nil {
		return nil, VerifyOutput{}, err
	}
	// A failing report is a result, not a tool error.
	return nil, VerifyOutput{Passed: err == nil, Gates: report.Results}, nil
}

// resolveCollection finds the promoted collection for evid. An empty evid
// selects the only promoted collection.
func (s *Server) resolveCollection(ctx context.Context, evid string) (domain.Collection, error) {
	cols, err := s.ports.Builds.Collections(ctx)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("listing collections: %w", err)
	}
	if evid == "" {
		if len(cols) != 1 {
			return domain.Collection{}, fmt.Errorf("%w: embedding_version_id is required when %d collections are promoted",
				domain.ErrMissingInput, len(cols))
		}
		return cols[0], nil
	}
	for _, c := range cols {
		if c.EmbeddingVersionID == evid {
			return c, nil
		}
	}
	return domain.Collection{}, fmt.Errorf("%w: no promoted collection for %s", domain.ErrNotPromoted, evid)
}
