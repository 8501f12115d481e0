package embedding

import (
	"context"
	"math"
)

// hashDims matches the remote service's own degraded-mode output so a
// mid-run tier change keeps vector lengths aligned where possible.
const hashDims = 768

// Hash is the last-resort embedder: a deterministic sinusoidal character
// hash into a fixed 768-dimension vector. It carries no vocabulary and
// never fails, so the subsystem can always return a vector.
type Hash struct{}

// NewHash creates the hash embedder.
func NewHash() *Hash { return &Hash{} }

// Name identifies the backend in logs.
func (h *Hash) Name() string { return "hash" }

// Embed hashes each text into a 768-dim L2-normalized vector.
func (h *Hash) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vectors[i] = h.embedOne(text)
	}
	return vectors, nil
}

func (h *Hash) embedOne(text string) []float64 {
	vec := make([]float64, hashDims)
	clean := normalizeKey(text)

	runes := []rune(clean)
	if len(runes) > 100 {
		runes = runes[:100]
	}
	for i, r := range runes {
		code := int(r)
		idx := (code*7 + i*11) % hashDims
		if idx < 0 {
			idx += hashDims
		}
		vec[idx] += math.Sin(float64(code+i)) * 0.1
	}

	// Length feature in slot 0.
	vec[0] = math.Log(float64(len(runes))+1) * 0.1

	l2Normalize(vec)
	return vec
}

// l2Normalize scales vec to unit length in place. A zero vector is left
// untouched.
func l2Normalize(vec []float64) {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
}
