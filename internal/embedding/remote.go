package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ─── Config ──────────────────────────────────────────────────────────────────

// ServiceConfig holds the remote embedding service configuration: where
// the child process lives, where it listens, and every timeout the
// supervisor applies.
type ServiceConfig struct {
	PythonBin  string
	ScriptPath string
	WorkDir    string
	Host       string
	Port       int
	Model      string

	// BaseURL overrides the http://Host:Port endpoint. Used to attach to
	// an externally started instance (and by tests).
	BaseURL string

	HealthTimeout       time.Duration
	EmbedTimeout        time.Duration
	StartupPollInterval time.Duration
	StartupMaxAttempts  int
	EmbedMaxAttempts    int
	EmbedRetryDelay     time.Duration
	ShutdownGrace       time.Duration
}

// DefaultServiceConfig returns the default supervisor configuration.
// The generous startup ceiling tolerates a first-run model download.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PythonBin:           "python3",
		ScriptPath:          "python-server/embedding_server.py",
		Host:                "127.0.0.1",
		Port:                8000,
		HealthTimeout:       5 * time.Second,
		EmbedTimeout:        30 * time.Second,
		StartupPollInterval: time.Second,
		StartupMaxAttempts:  60,
		EmbedMaxAttempts:    3,
		EmbedRetryDelay:     time.Second,
		ShutdownGrace:       2 * time.Second,
	}
}

// ─── Wire types ──────────────────────────────────────────────────────────────

// Usage is the token accounting the service reports. Opaque pass-through:
// nothing in similarity search depends on it.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// EmbedResult is the /embed response: one vector per input text, in input
// order, all of uniform length.
type EmbedResult struct {
	Embeddings [][]float64 `json:"embeddings"`
	Model      string      `json:"model"`
	Usage      Usage       `json:"usage"`
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type healthStatus struct {
	Status string `json:"status"`
	Model  string `json:"model"`
	Ready  bool   `json:"ready"`
}

// ─── Service ─────────────────────────────────────────────────────────────────

type serviceState int

const (
	stateNotStarted serviceState = iota
	stateStarting
	stateReady
	stateDown
	stateShuttingDown
)

func (s serviceState) String() string {
	switch s {
	case stateNotStarted:
		return "not-started"
	case stateStarting:
		return "starting"
	case stateReady:
		return "ready"
	case stateDown:
		return "down"
	case stateShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

// serviceHooks allow test injection of the process-level operations,
// so the state machine is testable against a fake health endpoint.
type serviceHooks struct {
	lookPath func(file string) (string, error)
	statFile func(name string) (os.FileInfo, error)
	spawn    func(s *Service) error
}

func defaultServiceHooks() serviceHooks {
	return serviceHooks{
		lookPath: exec.LookPath,
		statFile: os.Stat,
		spawn:    (*Service).startProcess,
	}
}

// Service supervises the embedding server child process and exposes its
// HTTP API. The mutex guards every state transition: concurrent callers
// awaiting Initialize share one in-flight startup instead of spawning
// multiple children. The child process handle is exclusively owned here.
type Service struct {
	cfg          ServiceConfig
	baseURL      string
	embedClient  *http.Client
	healthClient *http.Client
	hooks        serviceHooks

	mu       sync.Mutex
	state    serviceState
	cmd      *exec.Cmd
	procDone chan struct{}
}

// NewService creates a supervisor for the given configuration.
func NewService(cfg ServiceConfig) *Service {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}
	return &Service{
		cfg:          cfg,
		baseURL:      baseURL,
		embedClient:  &http.Client{Timeout: cfg.EmbedTimeout},
		healthClient: &http.Client{Timeout: cfg.HealthTimeout},
		hooks:        defaultServiceHooks(),
	}
}

// State reports the supervisor state as a string, for logs and stats.
func (s *Service) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

// Initialize brings the service online. It is idempotent: if the endpoint
// is already healthy (including an externally pre-started instance) no
// child is spawned. Otherwise it verifies the python runtime and server
// script exist, spawns the child with a sanitized environment, and polls
// /health until the ready flag is set or the ceiling is hit.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

func (s *Service) initializeLocked(ctx context.Context) error {
	if s.state == stateReady {
		return nil
	}

	if h, err := s.checkHealth(ctx); err == nil && h.Ready {
		log.Printf("embedding service already running at %s (model %s)", s.baseURL, h.Model)
		s.state = stateReady
		return nil
	}

	if _, err := s.hooks.lookPath(s.cfg.PythonBin); err != nil {
		return fmt.Errorf("%w: python runtime %q not found", ErrSetup, s.cfg.PythonBin)
	}
	if _, err := s.hooks.statFile(s.cfg.ScriptPath); err != nil {
		return fmt.Errorf("%w: server script %q: %v", ErrSetup, s.cfg.ScriptPath, err)
	}

	s.state = stateStarting
	if err := s.hooks.spawn(s); err != nil {
		s.state = stateDown
		return fmt.Errorf("embedding: spawn service: %w", err)
	}

	if err := s.waitForReady(ctx); err != nil {
		s.stopLocked()
		s.state = stateDown
		return err
	}

	s.state = stateReady
	log.Printf("embedding service ready at %s", s.baseURL)
	return nil
}

// waitForReady polls /health at the configured interval. A 2xx response
// with ready=false counts as not-yet-healthy, not an error.
func (s *Service) waitForReady(ctx context.Context) error {
	for attempt := 1; attempt <= s.cfg.StartupMaxAttempts; attempt++ {
		if h, err := s.checkHealth(ctx); err == nil && h.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.StartupPollInterval):
		}
	}
	return fmt.Errorf("%w: not ready after %d attempts", ErrStartupTimeout, s.cfg.StartupMaxAttempts)
}

func (s *Service) checkHealth(ctx context.Context) (healthStatus, error) {
	var h healthStatus
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return h, err
	}
	resp, err := s.healthClient.Do(req)
	if err != nil {
		return h, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return h, fmt.Errorf("embedding: health check status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return h, fmt.Errorf("embedding: decode health response: %w", err)
	}
	return h, nil
}

// Embed posts a batch of texts to /embed. Each failed attempt waits the
// retry delay, re-checks health, and respawns the child if it is down.
// After the attempt budget is exhausted it returns ErrServiceUnavailable
// rather than substituting data: the provider owns the fallback.
func (s *Service) Embed(ctx context.Context, texts []string) (*EmbedResult, error) {
	if len(texts) == 0 {
		return &EmbedResult{}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.EmbedMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.EmbedRetryDelay):
			}
			if err := s.ensureRunning(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		res, err := s.postEmbed(ctx, texts)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %d attempts: %v", ErrServiceUnavailable, s.cfg.EmbedMaxAttempts, lastErr)
}

func (s *Service) postEmbed(ctx context.Context, texts []string) (*EmbedResult, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, Model: s.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.embedClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: embed request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding: embed status %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var res EmbedResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("embedding: decode embed response: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d embeddings for %d texts", len(res.Embeddings), len(texts))
	}
	return &res, nil
}

// ensureRunning restores a down service before a retry. A healthy
// endpoint is left alone; otherwise the old child is reaped and a fresh
// startup runs under the same lock as Initialize.
func (s *Service) ensureRunning(ctx context.Context) error {
	if h, err := s.checkHealth(ctx); err == nil && h.Ready {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	log.Printf("WARNING: embedding service down, restarting")
	s.stopLocked()
	s.state = stateDown
	return s.initializeLocked(ctx)
}

// Shutdown terminates the child process: SIGTERM, a grace period, then a
// hard kill. Safe to call when nothing is running, and more than once.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		s.state = stateNotStarted
		return
	}
	s.state = stateShuttingDown
	s.stopLocked()
	s.state = stateNotStarted
}

// stopLocked reaps the child if one exists. Caller holds s.mu.
func (s *Service) stopLocked() {
	if s.cmd == nil || s.cmd.Process == nil {
		return
	}
	_ = s.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-s.procDone:
	case <-time.After(s.cfg.ShutdownGrace):
		_ = s.cmd.Process.Kill()
		<-s.procDone
	}
	s.cmd = nil
	s.procDone = nil
}

// startProcess spawns the embedding server child. Its stdout and stderr
// both go to our stderr: stdout carries the MCP stdio transport and must
// stay clean.
func (s *Service) startProcess() error {
	cmd := exec.Command(s.cfg.PythonBin, s.cfg.ScriptPath)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = s.childEnv()
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	s.cmd = cmd
	s.procDone = done
	log.Printf("embedding service spawned (pid %d)", cmd.Process.Pid)
	return nil
}

// childEnv builds the sanitized child environment: the parent environment
// minus PORT/HOST and any stale embedding-model-path variables, with the
// supervisor's own PORT/HOST appended last.
func (s *Service) childEnv() []string {
	env := make([]string, 0, len(os.Environ())+2)
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		switch {
		case key == "PORT" || key == "HOST":
			continue
		case strings.HasPrefix(key, "EMBEDDING_MODEL"):
			continue
		}
		env = append(env, kv)
	}
	env = append(env,
		fmt.Sprintf("PORT=%d", s.cfg.Port),
		fmt.Sprintf("HOST=%s", s.cfg.Host),
	)
	return env
}

func truncateBody(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
