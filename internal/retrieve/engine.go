// Package retrieve ranks observations against a query thought by
// semantic similarity, scoped to one canonical entity type tag.
//
// The candidate set is an exhaustive scan over the tag's observations.
// At the target scale (thousands of observations, not millions) this
// beats maintaining an index, and it keeps the store the only owner of
// graph data.
package retrieve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/calebreed/recall/internal/embed"
	"github.com/calebreed/recall/internal/graph"
	"github.com/calebreed/recall/internal/models"
)

// Snapshotter is the read-only view of the graph store the engine needs.
type Snapshotter interface {
	Snapshot() *models.KnowledgeGraph
}

// Result is one ranked observation with its owning entity's identity.
type Result struct {
	Entity     string    `json:"entity"`
	EntityType string    `json:"entityType"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Score      float64   `json:"score"`
}

// Engine performs tag-scoped semantic retrieval. Observation embeddings
// are cached keyed by exact content string; content is immutable once
// created, so cached vectors never go stale.
type Engine struct {
	store    Snapshotter
	embedder embed.Embedder
	cache    *ristretto.Cache
	allowed  map[string]bool // nil means any tag is accepted
}

// Option configures an Engine.
type Option func(*Engine)

// WithAllowedTags restricts retrieval to a closed set of canonical tags.
// The taxonomy stays out of the data model; this is boundary validation
// only.
func WithAllowedTags(tags []string) Option {
	return func(e *Engine) {
		e.allowed = make(map[string]bool, len(tags))
		for _, tag := range tags {
			e.allowed[tag] = true
		}
	}
}

// New builds an engine over the given store view and embedder.
func New(store Snapshotter, embedder embed.Embedder, opts ...Option) (*Engine, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     64 << 20, // 64 MiB of cached vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	e := &Engine{store: store, embedder: embedder, cache: cache}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RetrieveContext returns the topK observations under entities tagged
// canonicalTag, ranked by cosine similarity to queryThought. Fewer than
// topK candidates returns all of them; an empty candidate set returns an
// empty list, never an error.
func (e *Engine) RetrieveContext(ctx context.Context, canonicalTag, queryThought string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, graph.NewError(graph.CodeInvalidArgument, "topK must be > 0, got %d", topK)
	}
	if e.allowed != nil && !e.allowed[canonicalTag] {
		return nil, graph.NewError(graph.CodeInvalidArgument, "tag %q is not in the configured taxonomy", canonicalTag)
	}

	// Snapshot first and release the store before any model inference:
	// embedding may be slow and must not block writers.
	snap := e.store.Snapshot()

	type candidate struct {
		Result
		ord int
	}
	var candidates []candidate
	for _, ent := range snap.Entities {
		if ent.EntityType != canonicalTag {
			continue
		}
		for _, obs := range ent.Observations {
			candidates = append(candidates, candidate{
				Result: Result{
					Entity:     ent.Name,
					EntityType: ent.EntityType,
					Content:    obs.Content,
					Timestamp:  obs.Timestamp,
				},
				ord: len(candidates),
			})
		}
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	query, err := e.embedder.Embed(ctx, queryThought)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	for i := range candidates {
		vec, err := e.embedText(ctx, candidates[i].Content)
		if err != nil {
			return nil, fmt.Errorf("embed observation: %w", err)
		}
		candidates[i].Score = Cosine(query, vec)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp) // newer facts win exact ties
		}
		return a.ord < b.ord
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	results := make([]Result, topK)
	for i := 0; i < topK; i++ {
		results[i] = candidates[i].Result
	}
	return results, nil
}

// embedText returns the cached vector for content, computing and caching
// it on a miss.
func (e *Engine) embedText(ctx context.Context, content string) ([]float32, error) {
	if v, ok := e.cache.Get(content); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, err
	}
	e.cache.Set(content, vec, int64(4*len(vec)))
	return vec, nil
}

// Cosine is the normalized dot product of a and b. Zero-norm vectors
// (degenerate embeddings) score 0 rather than NaN.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na += va * va
		nb += vb * vb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
