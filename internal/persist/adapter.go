// Package persist owns the durable representation of the knowledge graph.
//
// Adapters are full-snapshot: Save rewrites the entire durable state on
// every call and Load reads it back once at startup. There is no WAL and
// no batching; crash consistency comes from atomic replacement of the
// whole representation.
package persist

import "github.com/calebreed/recall/internal/models"

// Adapter serializes the full graph state to durable storage.
type Adapter interface {
	// Load reads the persisted graph. Absent durable state is an empty
	// graph, not an error.
	Load() (*models.KnowledgeGraph, error)

	// Save atomically replaces the durable state with g.
	Save(g *models.KnowledgeGraph) error

	Close() error
}
