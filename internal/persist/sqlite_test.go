package persist

import (
	"path/filepath"
	"testing"

	"github.com/calebreed/recall/internal/models"
)

func setupSQLite(t *testing.T) *SQLiteAdapter {
	t.Helper()
	a, err := OpenSQLite(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestSQLiteEmptyLoad(t *testing.T) {
	a := setupSQLite(t)
	g, err := a.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Entities) != 0 || len(g.Relations) != 0 {
		t.Errorf("fresh db loaded non-empty graph: %+v", g)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	a := setupSQLite(t)

	want := sampleGraph()
	if err := a.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := a.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got.Entities) != 2 || len(got.Relations) != 1 {
		t.Fatalf("round trip lost data: %d entities, %d relations", len(got.Entities), len(got.Relations))
	}
	// Insertion order must survive: snapshots preserve it end to end.
	if got.Entities[0].Name != "Case 404" || got.Entities[1].Name != "User" {
		t.Errorf("entity order = %q, %q", got.Entities[0].Name, got.Entities[1].Name)
	}
	e := got.Entities[0]
	if !e.CreatedAt.Equal(want.Entities[0].CreatedAt) || !e.LastModified.Equal(want.Entities[0].LastModified) {
		t.Errorf("timestamps drifted: %+v", e)
	}
	if len(e.Observations) != 1 || e.Observations[0].Content != "Hearing on Jan 8th." {
		t.Errorf("observations = %+v", e.Observations)
	}
}

func TestSQLiteSaveReplacesSnapshot(t *testing.T) {
	a := setupSQLite(t)

	if err := a.Save(sampleGraph()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A second save with fewer rows must fully replace the first.
	small := &models.KnowledgeGraph{
		Entities:  []models.Entity{sampleGraph().Entities[1]},
		Relations: []models.Relation{},
	}
	if err := a.Save(small); err != nil {
		t.Fatalf("Save (replace): %v", err)
	}

	got, err := a.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Entities) != 1 || got.Entities[0].Name != "User" {
		t.Errorf("stale rows survived replacement: %+v", got.Entities)
	}
	if len(got.Relations) != 0 {
		t.Errorf("stale relations survived replacement: %+v", got.Relations)
	}
}

func TestSQLiteObservationOrder(t *testing.T) {
	a := setupSQLite(t)

	g := sampleGraph()
	ts := g.Entities[0].Observations[0].Timestamp
	// Same timestamp on purpose: order must come from position, not time.
	g.Entities[0].Observations = []models.Observation{
		{Content: "first", Timestamp: ts},
		{Content: "second", Timestamp: ts},
		{Content: "third", Timestamp: ts},
	}
	if err := a.Save(g); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := a.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	obs := got.Entities[0].Observations
	for i, want := range []string{"first", "second", "third"} {
		if obs[i].Content != want {
			t.Errorf("obs[%d] = %q, want %q", i, obs[i].Content, want)
		}
	}
}
