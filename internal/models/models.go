package models

import "time"

// Observation is an atomic, timestamped fact attached to exactly one entity.
// Observations have no identity of their own; deletion matches on content.
type Observation struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Entity is a named node in the knowledge graph, tagged with a broad
// category. Names are unique across the graph and matched case-sensitively.
type Entity struct {
	Name         string        `json:"name"`
	EntityType   string        `json:"entityType"`
	CreatedAt    time.Time     `json:"created_at"`
	LastModified time.Time     `json:"last_modified"`
	Observations []Observation `json:"observations"`
}

// Relation is a directed, typed edge between two named entities.
// Relations are immutable; deletion is exact-match on the full triple.
type Relation struct {
	From         string    `json:"from"`
	To           string    `json:"to"`
	RelationType string    `json:"relationType"`
	CreatedAt    time.Time `json:"created_at"`
}

// KnowledgeGraph is the full graph state. It is also the persisted wire
// shape: the JSON encoding of this struct is the memory file format.
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// Clone returns a deep copy of the graph. Readers get clones so they can
// never observe a concurrent mutation.
func (g *KnowledgeGraph) Clone() *KnowledgeGraph {
	out := &KnowledgeGraph{
		Entities:  make([]Entity, len(g.Entities)),
		Relations: make([]Relation, len(g.Relations)),
	}
	copy(out.Relations, g.Relations)
	for i, e := range g.Entities {
		obs := make([]Observation, len(e.Observations))
		copy(obs, e.Observations)
		e.Observations = obs
		out.Entities[i] = e
	}
	return out
}
