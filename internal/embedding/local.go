package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Compile-time interface checks.
var (
	_ Backend = (*TFIDF)(nil)
	_ Backend = (*Hash)(nil)
)

const (
	defaultMaxVocab = 1000
	minTokenLen     = 3
)

// errNoVocabulary marks the TF-IDF embedder unusable: no vocabulary could
// be built from any text seen so far. The provider drops to the hash tier.
var errNoVocabulary = errors.New("embedding: tfidf vocabulary is empty")

// TFIDF is the dependency-free statistical fallback embedder. Vector
// dimensions are the top terms of the trained vocabulary ranked by
// document frequency; values are TF·IDF, L2-normalized.
type TFIDF struct {
	mu       sync.RWMutex
	vocab    map[string]int // term -> dimension index
	idf      []float64
	maxVocab int
	trained  bool
}

// NewTFIDF creates a TF-IDF embedder capped at maxVocab dimensions.
// maxVocab <= 0 uses the default cap of 1000.
func NewTFIDF(maxVocab int) *TFIDF {
	if maxVocab <= 0 {
		maxVocab = defaultMaxVocab
	}
	return &TFIDF{
		vocab:    make(map[string]int),
		maxVocab: maxVocab,
	}
}

// Name identifies the backend in logs.
func (t *TFIDF) Name() string { return "tfidf" }

// Trained reports whether a vocabulary has been built.
func (t *TFIDF) Trained() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.trained
}

// Dimensions returns the current vocabulary size.
func (t *TFIDF) Dimensions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.vocab)
}

// Train rebuilds the vocabulary from docs: terms ranked by raw occurrence
// count across the corpus, capped at maxVocab, with IDF = log(totalDocs/df)
// per kept term. Retraining invalidates comparability of previously
// produced vectors; the caller owns re-embedding anything it kept.
func (t *TFIDF) Train(docs []string) error {
	counts := make(map[string]int)
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			counts[term]++
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}
	if len(counts) == 0 {
		return fmt.Errorf("train on %d docs: %w", len(docs), errNoVocabulary)
	}

	type termFreq struct {
		term string
		freq int
	}
	ranked := make([]termFreq, 0, len(counts))
	for term, freq := range counts {
		ranked = append(ranked, termFreq{term, freq})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].freq != ranked[j].freq {
			return ranked[i].freq > ranked[j].freq
		}
		return ranked[i].term < ranked[j].term
	})
	if len(ranked) > t.maxVocab {
		ranked = ranked[:t.maxVocab]
	}

	vocab := make(map[string]int, len(ranked))
	idf := make([]float64, len(ranked))
	total := float64(len(docs))
	for i, tf := range ranked {
		vocab[tf.term] = i
		idf[i] = math.Log(total / float64(df[tf.term]))
	}

	t.mu.Lock()
	t.vocab = vocab
	t.idf = idf
	t.trained = true
	t.mu.Unlock()
	return nil
}

// Embed converts texts to TF-IDF vectors. An untrained embedder trains
// itself on the input first; it fails only when no vocabulary exists at
// all. Texts with no vocabulary overlap come back as zero vectors.
func (t *TFIDF) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if !t.Trained() {
		if err := t.Train(texts); err != nil {
			return nil, err
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.vocab) == 0 {
		return nil, errNoVocabulary
	}

	dims := len(t.vocab)
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, dims)
		tokens := tokenize(text)

		counts := make(map[string]int)
		for _, tok := range tokens {
			counts[tok]++
		}
		for term, count := range counts {
			idx, ok := t.vocab[term]
			if !ok {
				continue
			}
			tf := float64(count) / float64(len(tokens))
			vec[idx] = tf * t.idf[idx]
		}

		l2Normalize(vec)
		vectors[i] = vec
	}
	return vectors, nil
}

// tokenize lowercases text, strips punctuation, splits on non-alphanumeric
// runs, and drops tokens shorter than minTokenLen runes.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	runeLen := 0

	flush := func() {
		if runeLen >= minTokenLen {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
		runeLen = 0
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			runeLen++
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
