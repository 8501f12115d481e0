// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools and resources that depend on abstractions.
// No business logic lives here — only wiring. The graph store is an
// explicitly constructed instance owned here; there are no package-level
// singletons.
package server

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/pronitdas/clarity-mcp/internal/config"
	"github.com/pronitdas/clarity-mcp/internal/embedding"
	"github.com/pronitdas/clarity-mcp/internal/graph"
	"github.com/pronitdas/clarity-mcp/internal/memtools"
	"github.com/pronitdas/clarity-mcp/internal/resources"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Provider must satisfy the store's embedder contract.
var _ graph.Embedder = (*embedding.Provider)(nil)

// New creates and configures the MCP server with all tools and resources
// registered. This is the single place where all dependencies are resolved.
//
// The remote embedding service is warmed up in the background so serving
// starts immediately; the first embed call joins the same in-flight
// initialization. The returned cleanup function shuts the supervised
// child process down and must be called on shutdown (typically via defer).
func New(cfg config.Config) (*server.MCPServer, func()) {
	// --- Create shared dependencies ---

	service := embedding.NewService(cfg.Service)
	provider := embedding.NewProvider(service)
	store := graph.New(cfg.Graph, provider)

	go provider.Initialize(context.Background())

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"clarity",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register memory tools ---

	addTool := memtools.NewAddTool(store)
	s.AddTool(addTool.Definition(), addTool.Handle)

	linkTool := memtools.NewLinkTool(store)
	s.AddTool(linkTool.Definition(), linkTool.Handle)

	searchTool := memtools.NewSearchTool(store)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	contextTool := memtools.NewContextTool(store)
	s.AddTool(contextTool.Definition(), contextTool.Handle)

	statsTool := memtools.NewStatsTool(store)
	s.AddTool(statsTool.Definition(), statsTool.Handle)

	exportTool := memtools.NewExportTool(store)
	s.AddTool(exportTool.Definition(), exportTool.Handle)

	clearCacheTool := memtools.NewClearCacheTool(store)
	s.AddTool(clearCacheTool.Definition(), clearCacheTool.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(store)
	s.AddResource(resourceHandler.GraphResource(), resourceHandler.HandleGraph)
	s.AddResource(resourceHandler.StatsResource(), resourceHandler.HandleStats)

	cleanup := func() {
		provider.Shutdown()
	}
	return s, cleanup
}

// serverInstructions returns the system instructions that tell the AI
// how to use the memory graph effectively.
func serverInstructions() string {
	return `You have access to clarity, a semantic memory MCP server.

clarity keeps a knowledge graph of memory nodes (concepts, observations,
tasks, solutions) connected by typed, weighted relations. Node labels are
embedded as vectors, so mem_search finds memories by MEANING, not keywords.

## When to save
Call mem_add after significant conclusions: a concept worth remembering,
an observation about the system, a task to track, or a solution that worked.
Pick the closest type; metadata is free-form JSON for anything structured.

## Building the graph
After adding related nodes, connect them with mem_link. The relation label
is free text ("supports", "contradicts", "refines", "causes") and the weight
expresses strength (default 1.0). Use mem_context to walk a node's
neighborhood when reasoning about a topic.

## Searching
mem_search ranks nodes by cosine similarity to your query text. Results
below the threshold (default 0.1) are dropped; raise it for precision.
Pass include_context=true to get each result's relations in one call.

## Operational notes
- Memory is volatile: it lives for this server process only. Use mem_export
  if the user wants a durable copy.
- Embedding quality degrades gracefully: if the embedding service is
  unavailable, a statistical fallback serves vectors — searches keep
  working, just less precisely.
- mem_stats shows graph size and which embedding backend is active.`
}
