package memtools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pronitdas/clarity-mcp/internal/graph"
)

// AddTool handles the mem_add MCP tool.
type AddTool struct {
	store *graph.Store
}

// NewAddTool creates an AddTool with the given graph store.
func NewAddTool(store *graph.Store) *AddTool {
	return &AddTool{store: store}
}

// Definition returns the MCP tool definition for mem_add.
func (t *AddTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_add",
		mcp.WithDescription(
			"Add a memory node to the semantic knowledge graph. The label is embedded for "+
				"similarity search; use mem_link to connect related nodes afterwards.",
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Free text content of the memory (may be empty)"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Enum("concept", "observation", "task", "solution"),
			mcp.Description("Node type: concept, observation, task, or solution"),
		),
		mcp.WithString("metadata",
			mcp.Description("Optional metadata as a JSON object string"),
		),
	)
}

// Handle processes the mem_add tool call.
func (t *AddTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	label, ok := args["label"].(string)
	if !ok {
		return mcp.NewToolResultError("'label' is required"), nil
	}

	typ := graph.NodeType(req.GetString("type", ""))
	if !typ.Valid() {
		return mcp.NewToolResultError("'type' must be one of: concept, observation, task, solution"), nil
	}

	metadata, err := metadataArg(req, "metadata")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	node, err := t.store.Add(ctx, graph.AddParams{
		Label:    label,
		Type:     typ,
		Metadata: metadata,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to add memory: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Memory added: %s (%s)\nID: %s", node.Label, node.Type, node.ID)), nil
}
