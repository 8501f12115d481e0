// Package embedding produces fixed-length vectors for free text.
//
// Three backends share one contract: a remote embedding service reached
// over HTTP and supervised as a child process, a local TF-IDF embedder,
// and a degenerate character-hash embedder that always succeeds. The
// Provider composes them: it prefers the remote service and demotes
// permanently to the local tiers once the service fails.
package embedding

import (
	"context"
	"errors"
)

// Backend converts a batch of texts into vectors. Output order matches
// input order and all vectors in one batch have the same length.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Name() string
}

// Sentinel errors for the embedding subsystem. Callers distinguish them
// with errors.Is; everything else is wrapped transport detail.
var (
	// ErrSetup means a startup precondition is missing (python binary or
	// server script). Not retried.
	ErrSetup = errors.New("embedding: service setup failed")

	// ErrStartupTimeout means the service never reported ready within the
	// polling ceiling.
	ErrStartupTimeout = errors.New("embedding: service startup timed out")

	// ErrServiceUnavailable means every embed attempt against the remote
	// service failed. The provider falls back to a local tier on it.
	ErrServiceUnavailable = errors.New("embedding: service unavailable")
)
