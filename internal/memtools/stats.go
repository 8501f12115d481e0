package memtools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pronitdas/clarity-mcp/internal/graph"
)

// StatsTool handles the mem_stats MCP tool.
type StatsTool struct {
	store *graph.Store
}

// NewStatsTool creates a StatsTool with the given graph store.
func NewStatsTool(store *graph.Store) *StatsTool {
	return &StatsTool{store: store}
}

// Definition returns the MCP tool definition for mem_stats.
func (t *StatsTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_stats",
		mcp.WithDescription(
			"Show semantic memory statistics — node and edge counts, nodes by type, "+
				"embedding cache size, and the active embedding backend.",
		),
	)
}

// Handle processes the mem_stats tool call.
func (t *StatsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats := t.store.Stats()

	var b strings.Builder
	b.WriteString("## Memory Statistics\n\n")
	fmt.Fprintf(&b, "- **Nodes**: %d\n", stats.TotalNodes)
	fmt.Fprintf(&b, "- **Edges**: %d\n", stats.TotalEdges)
	for _, typ := range []graph.NodeType{graph.NodeConcept, graph.NodeObservation, graph.NodeTask, graph.NodeSolution} {
		if n := stats.NodesByType[typ]; n > 0 {
			fmt.Fprintf(&b, "  - %s: %d\n", typ, n)
		}
	}
	fmt.Fprintf(&b, "- **Embedding cache**: %d entries\n", stats.CacheSize)
	fmt.Fprintf(&b, "- **Backend**: %s\n", stats.Backend)

	return mcp.NewToolResultText(b.String()), nil
}

// ─── ExportTool ─────────────────────────────────────────────────────────────

// ExportTool handles the mem_export MCP tool.
type ExportTool struct {
	store *graph.Store
}

// NewExportTool creates an ExportTool with the given graph store.
func NewExportTool(store *graph.Store) *ExportTool {
	return &ExportTool{store: store}
}

// Definition returns the MCP tool definition for mem_export.
func (t *ExportTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_export",
		mcp.WithDescription(
			"Export the full memory graph as JSON — every node and edge in insertion order. "+
				"Embeddings are never included.",
		),
	)
}

// Handle processes the mem_export tool call.
func (t *ExportTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(t.store.Export(), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to export graph: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ─── ClearCacheTool ─────────────────────────────────────────────────────────

// ClearCacheTool handles the mem_clear_cache MCP tool.
type ClearCacheTool struct {
	store *graph.Store
}

// NewClearCacheTool creates a ClearCacheTool with the given graph store.
func NewClearCacheTool(store *graph.Store) *ClearCacheTool {
	return &ClearCacheTool{store: store}
}

// Definition returns the MCP tool definition for mem_clear_cache.
func (t *ClearCacheTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_clear_cache",
		mcp.WithDescription(
			"Clear the embedding cache. Node embeddings are untouched; subsequent adds and "+
				"searches re-embed their text.",
		),
	)
}

// Handle processes the mem_clear_cache tool call.
func (t *ClearCacheTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.store.ClearCache()
	return mcp.NewToolResultText("Embedding cache cleared."), nil
}
