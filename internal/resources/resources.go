// Package resources implements MCP resource handlers for the memory graph.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (memory://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pronitdas/clarity-mcp/internal/graph"
)

// Handler manages memory resource endpoints.
type Handler struct {
	store *graph.Store
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store *graph.Store) *Handler {
	return &Handler{store: store}
}

// GraphResource returns the MCP resource definition for the graph export.
func (h *Handler) GraphResource() mcp.Resource {
	return mcp.NewResource(
		"memory://graph",
		"Semantic Memory Graph",
		mcp.WithResourceDescription("Full export of the memory graph: nodes and edges, embeddings stripped"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleGraph returns the graph export as JSON.
func (h *Handler) HandleGraph(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(h.store.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling graph export: %w", err)
	}
	return jsonResource(req.Params.URI, data), nil
}

// StatsResource returns the MCP resource definition for memory statistics.
func (h *Handler) StatsResource() mcp.Resource {
	return mcp.NewResource(
		"memory://stats",
		"Semantic Memory Statistics",
		mcp.WithResourceDescription("Node/edge counts, nodes by type, cache size, active embedding backend"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleStats returns the current graph statistics as JSON.
func (h *Handler) HandleStats(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(h.store.Stats(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling stats: %w", err)
	}
	return jsonResource(req.Params.URI, data), nil
}

func jsonResource(uri string, data []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}
}
