package memtools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pronitdas/clarity-mcp/internal/graph"
)

// SearchTool handles the mem_search MCP tool.
type SearchTool struct {
	store *graph.Store
}

// NewSearchTool creates a SearchTool with the given graph store.
func NewSearchTool(store *graph.Store) *SearchTool {
	return &SearchTool{store: store}
}

// Definition returns the MCP tool definition for mem_search.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_search",
		mcp.WithDescription(
			"Search the semantic memory graph by meaning, not keywords. Returns nodes ranked "+
				"by cosine similarity to the query text.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural-language search text"),
		),
		mcp.WithString("type",
			mcp.Enum("concept", "observation", "task", "solution"),
			mcp.Description("Restrict results to one node type"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: unlimited)"),
		),
		mcp.WithNumber("threshold",
			mcp.Description("Minimum similarity score to include (default: 0.1)"),
		),
		mcp.WithBoolean("include_context",
			mcp.Description("Attach each result's one-hop neighbors (default: false)"),
		),
	)
}

// Handle processes the mem_search tool call.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")

	results, err := t.store.Search(ctx, query, graph.SearchOptions{
		Type:           graph.NodeType(req.GetString("type", "")),
		Limit:          intArg(req, "limit", 0),
		Threshold:      floatArg(req, "threshold", 0),
		IncludeContext: boolArg(req, "include_context", false),
	})
	if errors.Is(err, graph.ErrEmptyQuery) {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No memories found above the similarity threshold."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %.3f (%s) %s\n    ID: %s\n", i+1, r.Score, r.Node.Type, r.Node.Label, r.Node.ID)
		for _, n := range r.Context {
			fmt.Fprintf(&b, "    ↳ %s %s: %s (%s)\n", n.Direction, n.Edge.Relation, n.Node.Label, n.Node.ID)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}
