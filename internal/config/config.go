// Package config holds the clarity-mcp configuration: defaults plus
// CLARITY_* environment overrides. Nothing here touches disk — the
// memory graph is volatile by design.
package config

import (
	"os"
	"strconv"

	"github.com/pronitdas/clarity-mcp/internal/embedding"
	"github.com/pronitdas/clarity-mcp/internal/graph"
)

// Config is the top-level server configuration.
type Config struct {
	Service embedding.ServiceConfig
	Graph   graph.Config
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Service: embedding.DefaultServiceConfig(),
		Graph:   graph.DefaultConfig(),
	}
}

// FromEnv returns the defaults with environment overrides applied:
//
//	CLARITY_PYTHON        python binary for the embedding service
//	CLARITY_EMBED_SCRIPT  path to the embedding server script
//	CLARITY_EMBED_DIR     working directory for the child process
//	CLARITY_EMBED_HOST    embedding service host
//	CLARITY_EMBED_PORT    embedding service port
//	CLARITY_EMBED_URL     full base URL (attach, skip spawning)
//	CLARITY_EMBED_MODEL   model identifier passed through to the service
func FromEnv() Config {
	cfg := Default()

	setString(&cfg.Service.PythonBin, "CLARITY_PYTHON")
	setString(&cfg.Service.ScriptPath, "CLARITY_EMBED_SCRIPT")
	setString(&cfg.Service.WorkDir, "CLARITY_EMBED_DIR")
	setString(&cfg.Service.Host, "CLARITY_EMBED_HOST")
	setInt(&cfg.Service.Port, "CLARITY_EMBED_PORT")
	setString(&cfg.Service.BaseURL, "CLARITY_EMBED_URL")
	setString(&cfg.Service.Model, "CLARITY_EMBED_MODEL")

	return cfg
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = n
	}
}
