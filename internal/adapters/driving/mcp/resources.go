package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/patentgov/internal/core/identity"
)

const (
	// URIScheme is the custom URI scheme for patentgov resources.
	uriScheme = "patentgov://"
)

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	// Static resource for listing promoted collections.
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "collections",
		Name:        "collections",
		Description: "Promoted embedding collections",
		MIMEType:    "application/json",
	}, s.handleCollectionsResource)

	// Template for the gate report of one collection.
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "collections/{workspace}/gates",
		Name:        "collection-gates",
		Description: "Promotion gate report of a collection, addressed by its escaped embedding version id",
		MIMEType:    "application/json",
	}, s.handleGatesResource)
}

// handleCollectionsResource returns every promoted collection.
func (s *Server) handleCollectionsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	cols, err := s.ports.Builds.Collections(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}

	type collectionInfo struct {
		EmbeddingVersionID string `json:"embedding_version_id"`
		RunID              string `json:"run_id"`
		PromotedAt         string `json:"promoted_at"`
		GatesURI           string `json:"gates_uri"`
	}

	infos := make([]collectionInfo, len(cols))
	for i, c := range cols {
		infos[i] = collectionInfo{
			EmbeddingVersionID: c.EmbeddingVersionID,
			RunID:              c.RunID,
			PromotedAt:         c.PromotedAt.UTC().Format("2006-01-02T15:04:05Z"),
			GatesURI:           uriScheme + "collections/" + identity.WorkspaceName(c.EmbeddingVersionID) + "/gates",
		}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling collections: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// handleGatesResource re-runs the promotion gates of one collection.
func (s *Server) handleGatesResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	evid := extractEmbeddingVersionID(req.Params.URI)
	if evid == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	// A failing report is still returned; its results carry the failures.
	report, _ := s.ports.Builds.Verify(ctx, evid)
	if report == nil {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling gate report: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractEmbeddingVersionID decodes the version from a URI like
// patentgov://collections/{workspace}/gates.
func extractEmbeddingVersionID(uri string) string {
	const prefix = uriScheme + "collections/"
	const suffix = "/gates"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	uri = strings.TrimPrefix(uri, prefix)
	if !strings.HasSuffix(uri, suffix) {
		return ""
	}
	evid, err := identity.ParseWorkspaceName(strings.TrimSuffix(uri, suffix))
	if err != nil {
		return ""
	}
	return evid
}
