package memtools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pronitdas/clarity-mcp/internal/graph"
)

// LinkTool handles the mem_link MCP tool.
type LinkTool struct {
	store *graph.Store
}

// NewLinkTool creates a LinkTool with the given graph store.
func NewLinkTool(store *graph.Store) *LinkTool {
	return &LinkTool{store: store}
}

// Definition returns the MCP tool definition for mem_link.
func (t *LinkTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_link",
		mcp.WithDescription(
			"Create a directed, weighted relation between two memory nodes. "+
				"Both endpoints must exist; duplicate relations are permitted.",
		),
		mcp.WithString("from_id",
			mcp.Required(),
			mcp.Description("Source node ID"),
		),
		mcp.WithString("to_id",
			mcp.Required(),
			mcp.Description("Target node ID"),
		),
		mcp.WithString("relation",
			mcp.Required(),
			mcp.Description("Relation label (e.g. supports, contradicts, refines — any string)"),
		),
		mcp.WithNumber("weight",
			mcp.Description("Relation strength (default: 1.0)"),
		),
		mcp.WithString("metadata",
			mcp.Description("Optional metadata as a JSON object string"),
		),
	)
}

// Handle processes the mem_link tool call.
func (t *LinkTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fromID := req.GetString("from_id", "")
	if fromID == "" {
		return mcp.NewToolResultError("'from_id' is required"), nil
	}
	toID := req.GetString("to_id", "")
	if toID == "" {
		return mcp.NewToolResultError("'to_id' is required"), nil
	}
	relation := req.GetString("relation", "")
	if relation == "" {
		return mcp.NewToolResultError("'relation' is required"), nil
	}

	metadata, err := metadataArg(req, "metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	edge, err := t.store.Link(graph.LinkParams{
		From:     fromID,
		To:       toID,
		Relation: relation,
		Weight:   floatArg(req, "weight", 0),
		Metadata: metadata,
	})
	if errors.Is(err, graph.ErrNodeNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to link memories: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Link created: %s → %s (%s, weight %.2f)\nEdge ID: %s",
		edge.From, edge.To, edge.Relation, edge.Weight, edge.ID,
	)), nil
}
