// Clarity: Semantic Memory MCP Server
//
// An MCP server exposing a semantic memory graph: vector-embedded memory
// nodes connected by typed, weighted relations, searchable by meaning.
// Embeddings come from a supervised external embedding service with a
// local statistical fallback.
//
// Usage:
//
//	clarity serve    # Start MCP server (stdio transport)
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/pronitdas/clarity-mcp/internal/config"
	claritysrv "github.com/pronitdas/clarity-mcp/internal/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("clarity v%s\n", claritysrv.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func run() error {
	// Logging goes to stderr: stdout carries the MCP stdio transport.
	log.SetOutput(os.Stderr)

	s, cleanup := claritysrv.New(config.FromEnv())
	defer cleanup()

	// Make sure the supervised embedding process is reaped on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cleanup()
		os.Exit(0)
	}()

	return server.ServeStdio(s)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Clarity v%s — Semantic Memory MCP Server

Usage:
  clarity serve    Start the MCP server (stdio transport)

Configuration (environment):
  CLARITY_PYTHON        python binary for the embedding service (default: python3)
  CLARITY_EMBED_SCRIPT  path to the embedding server script
  CLARITY_EMBED_HOST    embedding service host (default: 127.0.0.1)
  CLARITY_EMBED_PORT    embedding service port (default: 8000)
  CLARITY_EMBED_URL     attach to an already-running service at this URL

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "clarity": {
        "command": "clarity",
        "args": ["serve"]
      }
    }
  }
`, claritysrv.Version)
}
