package graph

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/calebreed/recall/internal/models"
	"github.com/calebreed/recall/internal/persist"
)

// Store is the single source of truth for the knowledge graph. All state
// lives in memory; every successful mutation is flushed synchronously
// through the persistence adapter. Mutations are serialized by a write
// lock, reads take a consistent deep-copy snapshot.
type Store struct {
	mu        sync.RWMutex
	byName    map[string]*models.Entity
	order     []string // entity names in insertion order
	relations []models.Relation
	adapter   persist.Adapter
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Used by tests to make timestamp
// invariants observable.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads the persisted graph through the adapter and returns a ready
// store. A missing or empty durable state yields an empty graph.
func Open(adapter persist.Adapter, opts ...Option) (*Store, error) {
	s := &Store{
		byName:  make(map[string]*models.Entity),
		adapter: adapter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	g, err := adapter.Load()
	if err != nil {
		return nil, err
	}
	for i := range g.Entities {
		e := g.Entities[i]
		if _, dup := s.byName[e.Name]; dup {
			continue // corrupt input; first occurrence wins
		}
		s.byName[e.Name] = &e
		s.order = append(s.order, e.Name)
	}
	s.relations = append(s.relations, g.Relations...)
	return s, nil
}

// Close performs a final flush and releases the adapter.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.adapter.Save(s.snapshotLocked()); err != nil {
		s.adapter.Close()
		return WrapPersistence(err)
	}
	return s.adapter.Close()
}

// --- Inputs and per-item outcomes ---

type EntityInput struct {
	Name         string
	EntityType   string
	Observations []string // optional initial facts
}

type EntityResult struct {
	Name string `json:"name"`
	Code Code   `json:"code"`
}

type ObservationInput struct {
	EntityName string
	Contents   []string
}

type ObservationResult struct {
	EntityName string `json:"entityName"`
	Code       Code   `json:"code"`
	Added      int    `json:"added,omitempty"`
	Removed    int    `json:"removed,omitempty"`
}

type RelationInput struct {
	From         string
	To           string
	RelationType string
}

type RelationResult struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
	Code         Code   `json:"code"`
}

// --- Mutations ---

// CreateEntities creates the named entities. An existing name yields a
// duplicate_entity outcome for that item and the batch continues; the
// existing entity is left untouched.
func (s *Store) CreateEntities(items []EntityInput) ([]EntityResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	results := make([]EntityResult, 0, len(items))
	changed := false

	for _, in := range items {
		if in.Name == "" {
			results = append(results, EntityResult{Name: in.Name, Code: CodeInvalidArgument})
			continue
		}
		if _, exists := s.byName[in.Name]; exists {
			results = append(results, EntityResult{Name: in.Name, Code: CodeDuplicateEntity})
			continue
		}
		e := &models.Entity{
			Name:         in.Name,
			EntityType:   in.EntityType,
			CreatedAt:    now,
			LastModified: now,
			Observations: []models.Observation{},
		}
		for _, content := range in.Observations {
			e.Observations = append(e.Observations, models.Observation{Content: content, Timestamp: now})
		}
		s.byName[in.Name] = e
		s.order = append(s.order, in.Name)
		results = append(results, EntityResult{Name: in.Name, Code: CodeOK})
		changed = true
	}

	return results, s.flushLocked(changed)
}

// DeleteEntities removes the named entities and cascades: every relation
// touching a removed entity as either endpoint goes with it. Unknown
// names are ignored, so repeated deletes are safe.
func (s *Store) DeleteEntities(names []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[string]bool, len(names))
	deleted := 0
	for _, name := range names {
		if _, ok := s.byName[name]; ok && !doomed[name] {
			doomed[name] = true
			delete(s.byName, name)
			deleted++
		}
	}
	if deleted == 0 {
		return 0, nil
	}

	kept := s.order[:0]
	for _, name := range s.order {
		if !doomed[name] {
			kept = append(kept, name)
		}
	}
	s.order = kept

	rels := s.relations[:0]
	for _, r := range s.relations {
		if !doomed[r.From] && !doomed[r.To] {
			rels = append(rels, r)
		}
	}
	s.relations = rels

	return deleted, s.flushLocked(true)
}

// AddObservations appends one timestamped observation per content string
// to each named entity. Identical content is never deduplicated: the same
// fact recorded twice is two observations. A name that does not exist
// yields an unknown_entity outcome for that item only.
func (s *Store) AddObservations(items []ObservationInput) ([]ObservationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	results := make([]ObservationResult, 0, len(items))
	changed := false

	for _, in := range items {
		e, ok := s.byName[in.EntityName]
		if !ok {
			results = append(results, ObservationResult{EntityName: in.EntityName, Code: CodeUnknownEntity})
			continue
		}
		for _, content := range in.Contents {
			e.Observations = append(e.Observations, models.Observation{Content: content, Timestamp: now})
		}
		if len(in.Contents) > 0 {
			e.LastModified = now
			changed = true
		}
		results = append(results, ObservationResult{EntityName: in.EntityName, Code: CodeOK, Added: len(in.Contents)})
	}

	return results, s.flushLocked(changed)
}

// DeleteObservations removes every observation whose content exactly
// matches one of the listed strings. Unknown entities and contents that
// match nothing are no-ops, not errors.
func (s *Store) DeleteObservations(items []ObservationInput) ([]ObservationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	results := make([]ObservationResult, 0, len(items))
	changed := false

	for _, in := range items {
		e, ok := s.byName[in.EntityName]
		if !ok {
			results = append(results, ObservationResult{EntityName: in.EntityName, Code: CodeOK})
			continue
		}
		doomed := make(map[string]bool, len(in.Contents))
		for _, content := range in.Contents {
			doomed[content] = true
		}
		kept := e.Observations[:0]
		removed := 0
		for _, o := range e.Observations {
			if doomed[o.Content] {
				removed++
				continue
			}
			kept = append(kept, o)
		}
		e.Observations = kept
		if removed > 0 {
			e.LastModified = now
			changed = true
		}
		results = append(results, ObservationResult{EntityName: in.EntityName, Code: CodeOK, Removed: removed})
	}

	return results, s.flushLocked(changed)
}

// CreateRelations creates directed typed edges. Both endpoints must
// already exist and the exact (from, to, relationType) triple must be
// new; violations are reported per item without aborting the batch.
func (s *Store) CreateRelations(items []RelationInput) ([]RelationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	existing := make(map[RelationInput]bool, len(s.relations))
	for _, r := range s.relations {
		existing[RelationInput{From: r.From, To: r.To, RelationType: r.RelationType}] = true
	}

	results := make([]RelationResult, 0, len(items))
	changed := false

	for _, in := range items {
		res := RelationResult{From: in.From, To: in.To, RelationType: in.RelationType}
		if _, ok := s.byName[in.From]; !ok {
			res.Code = CodeUnknownEntity
			results = append(results, res)
			continue
		}
		if _, ok := s.byName[in.To]; !ok {
			res.Code = CodeUnknownEntity
			results = append(results, res)
			continue
		}
		if existing[in] {
			res.Code = CodeDuplicateRelation
			results = append(results, res)
			continue
		}
		s.relations = append(s.relations, models.Relation{
			From:         in.From,
			To:           in.To,
			RelationType: in.RelationType,
			CreatedAt:    now,
		})
		existing[in] = true
		res.Code = CodeOK
		results = append(results, res)
		changed = true
	}

	return results, s.flushLocked(changed)
}

// DeleteRelations removes relations by exact triple match. Absent triples
// are no-ops.
func (s *Store) DeleteRelations(items []RelationInput) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doomed := make(map[RelationInput]bool, len(items))
	for _, in := range items {
		doomed[in] = true
	}

	kept := s.relations[:0]
	removed := 0
	for _, r := range s.relations {
		if doomed[RelationInput{From: r.From, To: r.To, RelationType: r.RelationType}] {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.relations = kept

	if removed == 0 {
		return 0, nil
	}
	return removed, s.flushLocked(true)
}

// --- Reads ---

// Snapshot returns a deep copy of the full graph, consistent at call
// time. Entities come back in insertion order.
func (s *Store) Snapshot() *models.KnowledgeGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// ReadGraph is the dump/debug view of the whole graph.
func (s *Store) ReadGraph() *models.KnowledgeGraph {
	return s.Snapshot()
}

// Open returns the named entities plus every relation touching any of
// them as either endpoint.
func (s *Store) Open(names []string) *models.KnowledgeGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[string]bool, len(names))
	for _, name := range names {
		want[name] = true
	}

	g := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	found := make(map[string]bool)
	for _, name := range s.order {
		if !want[name] {
			continue
		}
		e := s.byName[name]
		g.Entities = append(g.Entities, *cloneEntity(e))
		found[name] = true
	}
	for _, r := range s.relations {
		if found[r.From] || found[r.To] {
			g.Relations = append(g.Relations, r)
		}
	}
	return g
}

// Search returns entities whose name, type, or any observation contains
// the query (case-insensitive substring), plus relations whose endpoints
// both matched.
func (s *Store) Search(query string) *models.KnowledgeGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(query)
	g := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	found := make(map[string]bool)

	for _, name := range s.order {
		e := s.byName[name]
		if entityMatches(e, q) {
			g.Entities = append(g.Entities, *cloneEntity(e))
			found[name] = true
		}
	}
	for _, r := range s.relations {
		if found[r.From] && found[r.To] {
			g.Relations = append(g.Relations, r)
		}
	}
	return g
}

// EntityNames returns all entity names sorted, for diagnostics.
func (s *Store) EntityNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	return names
}

// --- internals ---

func entityMatches(e *models.Entity, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(e.Name), lowerQuery) {
		return true
	}
	if strings.Contains(strings.ToLower(e.EntityType), lowerQuery) {
		return true
	}
	for _, o := range e.Observations {
		if strings.Contains(strings.ToLower(o.Content), lowerQuery) {
			return true
		}
	}
	return false
}

func cloneEntity(e *models.Entity) *models.Entity {
	out := *e
	out.Observations = make([]models.Observation, len(e.Observations))
	copy(out.Observations, e.Observations)
	return &out
}

func (s *Store) snapshotLocked() *models.KnowledgeGraph {
	g := &models.KnowledgeGraph{
		Entities:  make([]models.Entity, 0, len(s.order)),
		Relations: make([]models.Relation, len(s.relations)),
	}
	for _, name := range s.order {
		g.Entities = append(g.Entities, *cloneEntity(s.byName[name]))
	}
	copy(g.Relations, s.relations)
	return g
}

// flushLocked writes the current state through the adapter when the call
// actually changed something. A flush failure does not roll the memory
// state back; the caller gets a persistence_failure instead.
func (s *Store) flushLocked(changed bool) error {
	if !changed {
		return nil
	}
	if err := s.adapter.Save(s.snapshotLocked()); err != nil {
		return WrapPersistence(err)
	}
	return nil
}
