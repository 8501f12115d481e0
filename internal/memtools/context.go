package memtools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pronitdas/clarity-mcp/internal/graph"
)

// ContextTool handles the mem_context MCP tool.
type ContextTool struct {
	store *graph.Store
}

// NewContextTool creates a ContextTool with the given graph store.
func NewContextTool(store *graph.Store) *ContextTool {
	return &ContextTool{store: store}
}

// Definition returns the MCP tool definition for mem_context.
func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_context",
		mcp.WithDescription(
			"Get a memory node with its one-hop neighborhood — every relation touching it, "+
				"outgoing and incoming, with the node on the other end.",
		),
		mcp.WithString("node_id",
			mcp.Required(),
			mcp.Description("Node ID to resolve context for"),
		),
	)
}

// Handle processes the mem_context tool call.
func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID := req.GetString("node_id", "")
	if nodeID == "" {
		return mcp.NewToolResultError("'node_id' is required"), nil
	}

	result, err := t.store.Context(nodeID)
	if errors.Is(err, graph.ErrNodeNotFound) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get context: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\nID: %s\n", result.Node.Label, result.Node.Type, result.Node.ID)

	if len(result.Neighbors) == 0 {
		b.WriteString("\nNo relations yet. Use mem_link to connect this node.\n")
		return mcp.NewToolResultText(b.String()), nil
	}

	fmt.Fprintf(&b, "\n%d relations:\n", len(result.Neighbors))
	for _, n := range result.Neighbors {
		arrow := "→"
		if n.Direction == "incoming" {
			arrow = "←"
		}
		fmt.Fprintf(&b, "  %s %s (weight %.2f): %s (%s) [%s]\n",
			arrow, n.Edge.Relation, n.Edge.Weight, n.Node.Label, n.Node.Type, n.Node.ID)
	}
	return mcp.NewToolResultText(b.String()), nil
}
