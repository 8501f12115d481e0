package embedding

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// backendState is the provider's two-state machine. The transition is
// one-way: usingRemote -> usingLocal, never back within a process.
type backendState int

const (
	usingRemote backendState = iota
	usingLocal
)

// Provider composes the three embedding tiers behind one contract. It
// prefers the remote service; once the service fails — at initialization
// or mid-session — it demotes permanently to the local TF-IDF embedder,
// with the hash embedder as the last resort when no vocabulary exists.
// Transient backend errors are absorbed here and never reach callers:
// availability wins over embedding fidelity.
type Provider struct {
	remote *Service
	local  *TFIDF
	hash   *Hash
	cache  *Cache

	initOnce sync.Once

	mu    sync.Mutex
	state backendState
}

// NewProvider creates a Provider over the given supervisor. A nil remote
// starts the provider directly in the local tier.
func NewProvider(remote *Service) *Provider {
	p := &Provider{
		remote: remote,
		local:  NewTFIDF(defaultMaxVocab),
		hash:   NewHash(),
		cache:  NewCache(),
	}
	if remote == nil {
		p.state = usingLocal
	}
	return p
}

// Initialize attempts to bring the remote backend online. Any failure —
// setup, startup timeout, anything — demotes to the local backend for the
// rest of the process; the error is logged, never returned. Idempotent:
// concurrent callers join one in-flight initialization.
func (p *Provider) Initialize(ctx context.Context) {
	p.initOnce.Do(func() {
		if p.remote == nil {
			log.Printf("embedding: no remote service configured, using local backend")
			return
		}
		if err := p.remote.Initialize(ctx); err != nil {
			p.demote(err)
		}
	})
}

// demote performs the one-way remote -> local transition. Not an error
// condition: a logged state change.
func (p *Provider) demote(cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == usingLocal {
		return
	}
	p.state = usingLocal
	log.Printf("WARNING: embedding degraded to local backend: %v", cause)
}

func (p *Provider) currentState() backendState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ActiveBackend reports which tier serves the next call, for logs and stats.
func (p *Provider) ActiveBackend() string {
	if p.currentState() == usingRemote {
		return "remote"
	}
	return p.local.Name()
}

// Embed returns one vector per text, in input order. Cached texts
// (normalized key) are served without a backend call; only the misses go
// out in one batch.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	p.Initialize(ctx)

	vectors := make([][]float64, len(texts))
	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := p.cache.Get(text); ok {
			vectors[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return vectors, nil
	}

	embedded, err := p.embedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, vec := range embedded {
		p.cache.Put(missTexts[j], vec)
		vectors[missIdx[j]] = vec
	}
	return vectors, nil
}

// EmbedSingle embeds one text.
func (p *Provider) EmbedSingle(ctx context.Context, text string) ([]float64, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// embedBatch walks the tiers. A remote failure after the service had been
// active demotes and retries the same batch locally rather than failing
// the request; a local failure drops to the hash tier.
func (p *Provider) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if p.currentState() == usingRemote {
		res, err := p.remote.Embed(ctx, texts)
		if err == nil {
			return res.Embeddings, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embedding: %w", ctx.Err())
		}
		p.demote(err)
	}

	vecs, err := p.local.Embed(ctx, texts)
	if err == nil {
		return vecs, nil
	}
	return p.hash.Embed(ctx, texts)
}

// RefreshVocabulary rebuilds the local embedder's vocabulary from docs
// and reports whether a rebuild happened. A no-op while the remote
// backend is active. Rebuilding invalidates every cached vector, so the
// cache is cleared; the caller owns re-embedding anything it stored.
func (p *Provider) RefreshVocabulary(docs []string) bool {
	if p.currentState() == usingRemote {
		return false
	}
	if err := p.local.Train(docs); err != nil {
		return false
	}
	p.cache.Clear()
	return true
}

// CacheSize reports the number of cached vectors.
func (p *Provider) CacheSize() int { return p.cache.Len() }

// ClearCache drops every cached vector.
func (p *Provider) ClearCache() { p.cache.Clear() }

// Shutdown stops the supervised child process, if any.
func (p *Provider) Shutdown() {
	if p.remote != nil {
		p.remote.Shutdown()
	}
}
