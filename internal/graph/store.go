// Package graph implements the semantic memory graph for clarity-mcp.
//
// It keeps a volatile node/edge knowledge graph whose nodes carry vector
// embeddings, and answers similarity searches by exhaustive cosine scan.
// Embeddings come from an injected provider and never leave the package:
// every returned node is a copy with the vector stripped.
package graph

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// NodeType classifies a memory node. The set is closed.
type NodeType string

const (
	NodeConcept     NodeType = "concept"
	NodeObservation NodeType = "observation"
	NodeTask        NodeType = "task"
	NodeSolution    NodeType = "solution"
)

// Valid reports whether t is a member of the closed node type set.
func (t NodeType) Valid() bool {
	switch t {
	case NodeConcept, NodeObservation, NodeTask, NodeSolution:
		return true
	}
	return false
}

// Node is a labeled memory unit. The embedding lives in an unexported
// field so it cannot leak across the package boundary, in JSON or
// otherwise.
type Node struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	Type      NodeType       `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	embedding []float64
}

// view returns a caller-safe copy: embedding stripped, metadata cloned.
func (n *Node) view() Node {
	out := *n
	out.embedding = nil
	if n.Metadata != nil {
		out.Metadata = make(map[string]any, len(n.Metadata))
		for k, v := range n.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Edge is a directed, weighted relation between two existing nodes.
type Edge struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Relation  string         `json:"relation"`
	Weight    float64        `json:"weight"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AddParams holds the input for creating a node.
type AddParams struct {
	Label    string         `json:"label"`
	Type     NodeType       `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// LinkParams holds the input for creating an edge. Weight 0 means the
// default of 1.0.
type LinkParams struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Relation string         `json:"relation"`
	Weight   float64        `json:"weight,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchOptions filters and shapes a similarity search. Threshold 0 means
// the default (0.1); pass a negative threshold to keep every match.
// Limit 0 means unlimited.
type SearchOptions struct {
	Type           NodeType `json:"type,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Threshold      float64  `json:"threshold,omitempty"`
	IncludeContext bool     `json:"include_context,omitempty"`
}

// SearchResult pairs a node view with its cosine similarity score.
type SearchResult struct {
	Node    Node       `json:"node"`
	Score   float64    `json:"score"`
	Context []Neighbor `json:"context,omitempty"`
}

// Neighbor is one edge touching a node together with the other endpoint.
type Neighbor struct {
	Node      Node   `json:"node"`
	Edge      Edge   `json:"edge"`
	Direction string `json:"direction"` // "outgoing" or "incoming"
}

// ContextResult holds a node with its one-hop neighborhood, the
// direction-agnostic union of outgoing and incoming edges.
type ContextResult struct {
	Node      Node       `json:"node"`
	Neighbors []Neighbor `json:"neighbors"`
}

// Stats holds aggregate graph statistics.
type Stats struct {
	TotalNodes  int              `json:"total_nodes"`
	TotalEdges  int              `json:"total_edges"`
	NodesByType map[NodeType]int `json:"nodes_by_type"`
	CacheSize   int              `json:"cache_size"`
	Backend     string           `json:"backend"`
}

// ExportData is the full serializable dump of the graph, embeddings
// stripped, in insertion order.
type ExportData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// ─── Errors ──────────────────────────────────────────────────────────────────

var (
	// ErrNodeNotFound is returned for link/context calls referencing an
	// unknown node id.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrEmptyQuery is returned for a blank search text.
	ErrEmptyQuery = errors.New("graph: empty search query")

	// ErrInvalidType is returned for a node type outside the closed set.
	ErrInvalidType = errors.New("graph: invalid node type")
)

// ─── Config ──────────────────────────────────────────────────────────────────

// DefaultThreshold is the similarity floor applied when a search does not
// specify one.
const DefaultThreshold = 0.1

// Config holds graph store configuration.
type Config struct {
	// VocabRefreshEvery triggers a fallback-vocabulary refresh after every
	// Nth successful add. Best-effort and idempotent; a no-op while the
	// remote embedding backend is active.
	VocabRefreshEvery int
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{VocabRefreshEvery: 50}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Embedder is the embedding provider contract the store depends on.
// *embedding.Provider satisfies it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	EmbedSingle(ctx context.Context, text string) ([]float64, error)
	RefreshVocabulary(docs []string) bool
	ActiveBackend() string
	CacheSize() int
	ClearCache()
}

// Store owns the memory graph. Mutation is serialized under one writer
// lock; reads run concurrently and tolerate missing a node added
// microseconds earlier. Insertion order is kept explicitly so scans and
// score ties are deterministic.
type Store struct {
	cfg      Config
	embedder Embedder

	mu        sync.RWMutex
	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	byType    map[NodeType][]string
	labels    []string // every label ever added, the refresh corpus
	addCount  int
}

// New creates an empty graph store over the given embedder.
func New(cfg Config, embedder Embedder) *Store {
	if cfg.VocabRefreshEvery <= 0 {
		cfg.VocabRefreshEvery = DefaultConfig().VocabRefreshEvery
	}
	return &Store{
		cfg:      cfg,
		embedder: embedder,
		nodes:    make(map[string]*Node),
		edges:    make(map[string]*Edge),
		byType:   make(map[NodeType][]string),
	}
}

// ─── Mutation ────────────────────────────────────────────────────────────────

// Add creates a node. It always succeeds on valid input — an empty label
// is explicitly permitted. Every cfg.VocabRefreshEvery-th add triggers a
// best-effort vocabulary refresh from all labels seen so far.
func (s *Store) Add(ctx context.Context, params AddParams) (Node, error) {
	if !params.Type.Valid() {
		return Node{}, fmt.Errorf("%w: %q", ErrInvalidType, params.Type)
	}

	vec, err := s.embedder.EmbedSingle(ctx, params.Label)
	if err != nil {
		return Node{}, fmt.Errorf("graph: embed label: %w", err)
	}

	now := time.Now().UTC()
	node := &Node{
		ID:        uuid.NewString(),
		Label:     params.Label,
		Type:      params.Type,
		Metadata:  params.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
		embedding: vec,
	}

	s.mu.Lock()
	s.nodes[node.ID] = node
	s.nodeOrder = append(s.nodeOrder, node.ID)
	s.byType[node.Type] = append(s.byType[node.Type], node.ID)
	s.labels = append(s.labels, node.Label)
	s.addCount++
	refresh := s.addCount%s.cfg.VocabRefreshEvery == 0
	// Copy while still holding the lock: a concurrent vocabulary refresh
	// rewrites the stored node's embedding and timestamp in place.
	out := node.view()
	s.mu.Unlock()

	if refresh {
		s.refreshVocabulary(ctx)
	}

	return out, nil
}

// Link creates an edge between two existing nodes. Both endpoints must
// exist; duplicate edges are permitted.
func (s *Store) Link(params LinkParams) (Edge, error) {
	weight := params.Weight
	if weight == 0 {
		weight = 1.0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[params.From]; !ok {
		return Edge{}, fmt.Errorf("%w: from %q", ErrNodeNotFound, params.From)
	}
	if _, ok := s.nodes[params.To]; !ok {
		return Edge{}, fmt.Errorf("%w: to %q", ErrNodeNotFound, params.To)
	}

	now := time.Now().UTC()
	edge := &Edge{
		ID:        uuid.NewString(),
		From:      params.From,
		To:        params.To,
		Relation:  params.Relation,
		Weight:    weight,
		Metadata:  params.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.edges[edge.ID] = edge
	s.edgeOrder = append(s.edgeOrder, edge.ID)
	return *edge, nil
}

// refreshVocabulary rebuilds the fallback vocabulary from every label
// seen so far and, when a rebuild actually happened, re-embeds every node
// so stored vectors stay comparable. Best-effort: embedding failures
// leave old vectors in place (the cosine min-length guard covers them).
func (s *Store) refreshVocabulary(ctx context.Context) {
	s.mu.RLock()
	corpus := make([]string, len(s.labels))
	copy(corpus, s.labels)
	ids := make([]string, len(s.nodeOrder))
	copy(ids, s.nodeOrder)
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = s.nodes[id].Label
	}
	s.mu.RUnlock()

	if !s.embedder.RefreshVocabulary(corpus) {
		return
	}

	vecs, err := s.embedder.Embed(ctx, labels)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, id := range ids {
		if node, ok := s.nodes[id]; ok {
			node.embedding = vecs[i]
			node.UpdatedAt = time.Now().UTC()
		}
	}
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// Search embeds the query text and scans every node (optionally
// pre-filtered by type) with cosine similarity. Results at or above the
// threshold come back score-descending; ties keep insertion order.
func (s *Store) Search(ctx context.Context, text string, opts SearchOptions) ([]SearchResult, error) {
	if isBlank(text) {
		return nil, ErrEmptyQuery
	}
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}

	query, err := s.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("graph: embed query: %w", err)
	}

	s.mu.RLock()
	candidates := s.nodeOrder
	if opts.Type != "" {
		candidates = s.byType[opts.Type]
	}
	var results []SearchResult
	for _, id := range candidates {
		node := s.nodes[id]
		score := cosine(query, node.embedding)
		if score < opts.Threshold {
			continue
		}
		results = append(results, SearchResult{Node: node.view(), Score: score})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	if opts.IncludeContext {
		for i := range results {
			results[i].Context = s.neighbors(results[i].Node.ID)
		}
	}
	return results, nil
}

// Context returns a node together with every edge touching it and the
// other endpoint of each, outgoing and incoming alike.
func (s *Store) Context(nodeID string) (ContextResult, error) {
	s.mu.RLock()
	node, ok := s.nodes[nodeID]
	if !ok {
		s.mu.RUnlock()
		return ContextResult{}, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	view := node.view()
	s.mu.RUnlock()
	return ContextResult{
		Node:      view,
		Neighbors: s.neighbors(nodeID),
	}, nil
}

// neighbors collects the one-hop neighborhood of nodeID in edge insertion
// order.
func (s *Store) neighbors(nodeID string) []Neighbor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Neighbor
	for _, edgeID := range s.edgeOrder {
		edge := s.edges[edgeID]
		var otherID, direction string
		switch {
		case edge.From == nodeID:
			otherID, direction = edge.To, "outgoing"
		case edge.To == nodeID:
			otherID, direction = edge.From, "incoming"
		default:
			continue
		}
		other, ok := s.nodes[otherID]
		if !ok {
			continue
		}
		out = append(out, Neighbor{
			Node:      other.view(),
			Edge:      *edge,
			Direction: direction,
		})
	}
	return out
}

// Stats returns aggregate counts plus the active embedding backend.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := make(map[NodeType]int, len(s.byType))
	for t, ids := range s.byType {
		byType[t] = len(ids)
	}
	return Stats{
		TotalNodes:  len(s.nodes),
		TotalEdges:  len(s.edges),
		NodesByType: byType,
		CacheSize:   s.embedder.CacheSize(),
		Backend:     s.embedder.ActiveBackend(),
	}
}

// Export dumps every node and edge, embeddings stripped, in insertion
// order.
func (s *Store) Export() ExportData {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := ExportData{
		Nodes: make([]Node, 0, len(s.nodeOrder)),
		Edges: make([]Edge, 0, len(s.edgeOrder)),
	}
	for _, id := range s.nodeOrder {
		out.Nodes = append(out.Nodes, s.nodes[id].view())
	}
	for _, id := range s.edgeOrder {
		out.Edges = append(out.Edges, *s.edges[id])
	}
	return out
}

// ClearCache drops the embedding cache.
func (s *Store) ClearCache() {
	s.embedder.ClearCache()
}

// ─── Similarity ──────────────────────────────────────────────────────────────

// cosine computes dot(a,b)/(|a|·|b|) over min(len(a), len(b)), returning
// 0 when either norm is zero. The length truncation is a deliberate guard:
// a mid-run backend change can leave vectors of mismatched length in the
// store, and comparing the shared prefix beats failing the search.
func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
