package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"
)

// fakeEmbedServer fakes the external embedding service: a /health
// endpoint with a controllable ready flag and an /embed endpoint with
// call counting and scriptable failures.
type fakeEmbedServer struct {
	mu         sync.Mutex
	ready      bool
	failEmbeds int // fail this many /embed calls with 500 before succeeding
	embedCalls int
	srv        *httptest.Server
}

func newFakeEmbedServer(t *testing.T, ready bool) *fakeEmbedServer {
	t.Helper()
	f := &fakeEmbedServer{ready: ready}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ready := f.ready
		f.mu.Unlock()
		json.NewEncoder(w).Encode(healthStatus{Status: "healthy", Model: "test-model", Ready: ready})
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.embedCalls++
		fail := f.failEmbeds > 0
		if fail {
			f.failEmbeds--
		}
		f.mu.Unlock()

		if fail {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		res := EmbedResult{Model: "test-model", Usage: Usage{PromptTokens: len(req.Texts), TotalTokens: len(req.Texts)}}
		for i := range req.Texts {
			res.Embeddings = append(res.Embeddings, []float64{1, float64(i), 0})
		}
		json.NewEncoder(w).Encode(res)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeEmbedServer) setReady(ready bool) {
	f.mu.Lock()
	f.ready = ready
	f.mu.Unlock()
}

func (f *fakeEmbedServer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

// newFakeService builds a Service pointed at the fake server with fast
// timings and process hooks stubbed out.
func newFakeService(t *testing.T, f *fakeEmbedServer) (*Service, *int) {
	t.Helper()
	cfg := DefaultServiceConfig()
	cfg.BaseURL = f.srv.URL
	cfg.StartupPollInterval = time.Millisecond
	cfg.StartupMaxAttempts = 50
	cfg.EmbedRetryDelay = time.Millisecond

	s := NewService(cfg)
	spawns := new(int)
	s.hooks.lookPath = func(string) (string, error) { return "/usr/bin/python3", nil }
	s.hooks.statFile = func(string) (os.FileInfo, error) { return nil, nil }
	s.hooks.spawn = func(*Service) error { *spawns++; return nil }
	return s, spawns
}

// ─── Initialize ─────────────────────────────────────────────────────────────

func TestInitialize_AttachesToRunningService(t *testing.T) {
	f := newFakeEmbedServer(t, true)
	s, spawns := newFakeService(t, f)

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if *spawns != 0 {
		t.Errorf("spawned %d children for an already-healthy service, want 0", *spawns)
	}
	if got := s.State(); got != "ready" {
		t.Errorf("State() = %q, want %q", got, "ready")
	}
}

func TestInitialize_PollsUntilReady(t *testing.T) {
	f := newFakeEmbedServer(t, false)
	s, spawns := newFakeService(t, f)
	// Simulate the child coming up: after spawn, the health endpoint
	// flips to ready.
	s.hooks.spawn = func(*Service) error {
		*spawns++
		go func() {
			time.Sleep(5 * time.Millisecond)
			f.setReady(true)
		}()
		return nil
	}

	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if *spawns != 1 {
		t.Errorf("spawns = %d, want 1", *spawns)
	}
	if got := s.State(); got != "ready" {
		t.Errorf("State() = %q, want %q", got, "ready")
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	f := newFakeEmbedServer(t, true)
	s, spawns := newFakeService(t, f)

	for i := 0; i < 3; i++ {
		if err := s.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize #%d error: %v", i+1, err)
		}
	}
	if *spawns != 0 {
		t.Errorf("spawns = %d, want 0", *spawns)
	}
}

func TestInitialize_SetupErrorWhenRuntimeMissing(t *testing.T) {
	f := newFakeEmbedServer(t, false)
	s, spawns := newFakeService(t, f)
	s.hooks.lookPath = func(string) (string, error) { return "", fmt.Errorf("not found") }

	err := s.Initialize(context.Background())
	if !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v, want ErrSetup", err)
	}
	if *spawns != 0 {
		t.Errorf("spawns = %d after setup failure, want 0", *spawns)
	}
}

func TestInitialize_SetupErrorWhenScriptMissing(t *testing.T) {
	f := newFakeEmbedServer(t, false)
	s, _ := newFakeService(t, f)
	s.hooks.statFile = func(string) (os.FileInfo, error) { return nil, os.ErrNotExist }

	if err := s.Initialize(context.Background()); !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v, want ErrSetup", err)
	}
}

func TestInitialize_TimesOutWhenNeverReady(t *testing.T) {
	// ready stays false: a 2xx health response without the ready flag
	// must never count as healthy.
	f := newFakeEmbedServer(t, false)
	s, _ := newFakeService(t, f)
	s.cfg.StartupMaxAttempts = 3

	err := s.Initialize(context.Background())
	if !errors.Is(err, ErrStartupTimeout) {
		t.Fatalf("err = %v, want ErrStartupTimeout", err)
	}
	if got := s.State(); got != "down" {
		t.Errorf("State() = %q after startup timeout, want %q", got, "down")
	}
}

func TestInitialize_SharedAcrossConcurrentCallers(t *testing.T) {
	f := newFakeEmbedServer(t, false)
	s, spawns := newFakeService(t, f)
	s.hooks.spawn = func(*Service) error {
		*spawns++
		go func() {
			time.Sleep(5 * time.Millisecond)
			f.setReady(true)
		}()
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: Initialize error: %v", i, err)
		}
	}
	if *spawns != 1 {
		t.Errorf("spawns = %d for 5 concurrent callers, want 1", *spawns)
	}
}

// ─── Embed ──────────────────────────────────────────────────────────────────

func TestEmbed_Success(t *testing.T) {
	f := newFakeEmbedServer(t, true)
	s, _ := newFakeService(t, f)

	res, err := s.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("got %d embeddings, want 2", len(res.Embeddings))
	}
	if res.Model != "test-model" {
		t.Errorf("Model = %q, want %q", res.Model, "test-model")
	}
	if res.Usage.TotalTokens != 2 {
		t.Errorf("TotalTokens = %d, want 2", res.Usage.TotalTokens)
	}
}

func TestEmbed_RetriesTransientFailure(t *testing.T) {
	f := newFakeEmbedServer(t, true)
	f.failEmbeds = 1
	s, _ := newFakeService(t, f)

	res, err := s.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("Embed error after transient failure: %v", err)
	}
	if len(res.Embeddings) != 1 {
		t.Fatalf("got %d embeddings, want 1", len(res.Embeddings))
	}
	if got := f.calls(); got != 2 {
		t.Errorf("embed calls = %d, want 2 (one failure + one retry)", got)
	}
}

func TestEmbed_RespawnsDownServiceBeforeRetry(t *testing.T) {
	// The first /embed fails while health reports not-ready: the retry
	// must reap and respawn the child before posting again.
	f := newFakeEmbedServer(t, false)
	f.failEmbeds = 1
	s, spawns := newFakeService(t, f)
	s.hooks.spawn = func(*Service) error {
		*spawns++
		f.setReady(true)
		return nil
	}

	res, err := s.Embed(context.Background(), []string{"alpha"})
	if err != nil {
		t.Fatalf("Embed error after respawn: %v", err)
	}
	if len(res.Embeddings) != 1 {
		t.Fatalf("got %d embeddings, want 1", len(res.Embeddings))
	}
	if *spawns != 1 {
		t.Errorf("spawns = %d, want 1 (down service respawned before retry)", *spawns)
	}
	if got := f.calls(); got != 2 {
		t.Errorf("embed calls = %d, want 2 (one failure + one retry)", got)
	}
	if got := s.State(); got != "ready" {
		t.Errorf("State() = %q after respawn, want %q", got, "ready")
	}
}

func TestEmbed_ExhaustionReturnsTypedError(t *testing.T) {
	f := newFakeEmbedServer(t, true)
	f.failEmbeds = 100
	s, _ := newFakeService(t, f)

	_, err := s.Embed(context.Background(), []string{"alpha"})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("err = %v, want ErrServiceUnavailable", err)
	}
	if got := f.calls(); got != s.cfg.EmbedMaxAttempts {
		t.Errorf("embed calls = %d, want %d", got, s.cfg.EmbedMaxAttempts)
	}
}

func TestEmbed_EmptyBatch(t *testing.T) {
	f := newFakeEmbedServer(t, true)
	s, _ := newFakeService(t, f)

	res, err := s.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(res.Embeddings) != 0 {
		t.Errorf("got %d embeddings for empty batch, want 0", len(res.Embeddings))
	}
	if f.calls() != 0 {
		t.Errorf("empty batch should not hit the service")
	}
}

// ─── Shutdown ───────────────────────────────────────────────────────────────

func TestShutdown_IdempotentWithoutProcess(t *testing.T) {
	f := newFakeEmbedServer(t, true)
	s, _ := newFakeService(t, f)

	s.Shutdown()
	s.Shutdown()
	if got := s.State(); got != "not-started" {
		t.Errorf("State() = %q after Shutdown, want %q", got, "not-started")
	}
}

// ─── Environment sanitization ───────────────────────────────────────────────

func TestChildEnv_Sanitized(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("HOST", "example.com")
	t.Setenv("EMBEDDING_MODEL_PATH", "/stale/model")
	t.Setenv("UNRELATED_VAR", "kept")

	cfg := DefaultServiceConfig()
	cfg.Port = 8123
	cfg.Host = "127.0.0.1"
	s := NewService(cfg)

	env := s.childEnv()
	var port, host string
	for _, kv := range env {
		switch {
		case kv == "EMBEDDING_MODEL_PATH=/stale/model":
			t.Error("stale embedding model path leaked into child env")
		case kv == "PORT=9999":
			t.Error("parent PORT leaked into child env")
		case len(kv) > 5 && kv[:5] == "PORT=":
			port = kv
		case len(kv) > 5 && kv[:5] == "HOST=":
			host = kv
		}
	}
	if port != "PORT=8123" {
		t.Errorf("child PORT = %q, want PORT=8123", port)
	}
	if host != "HOST=127.0.0.1" {
		t.Errorf("child HOST = %q, want HOST=127.0.0.1", host)
	}
}
