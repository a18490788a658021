package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/calebreed/recall/internal/models"
)

func sampleGraph() *models.KnowledgeGraph {
	created := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	return &models.KnowledgeGraph{
		Entities: []models.Entity{
			{
				Name:         "Case 404",
				EntityType:   "Professional",
				CreatedAt:    created,
				LastModified: created.Add(time.Minute),
				Observations: []models.Observation{
					{Content: "Hearing on Jan 8th.", Timestamp: created.Add(time.Minute)},
				},
			},
			{
				Name:         "User",
				EntityType:   "Personal",
				CreatedAt:    created,
				LastModified: created,
				Observations: []models.Observation{},
			},
		},
		Relations: []models.Relation{
			{From: "User", To: "Case 404", RelationType: "counsel", CreatedAt: created},
		},
	}
}

func TestFileMissingIsEmptyGraph(t *testing.T) {
	f := NewFile(filepath.Join(t.TempDir(), "memory.json"))
	g, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Entities) != 0 || len(g.Relations) != 0 {
		t.Errorf("missing file loaded as non-empty graph: %+v", g)
	}
}

func TestFileEmptyIsEmptyGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := os.WriteFile(path, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	g, err := NewFile(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(g.Entities) != 0 {
		t.Errorf("whitespace file loaded as non-empty graph: %+v", g)
	}
}

func TestFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	f := NewFile(path)

	want := sampleGraph()
	if err := f.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := f.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(got.Entities) != 2 || len(got.Relations) != 1 {
		t.Fatalf("round trip lost data: %d entities, %d relations", len(got.Entities), len(got.Relations))
	}
	e := got.Entities[0]
	if e.Name != "Case 404" || e.EntityType != "Professional" {
		t.Errorf("entity = %q/%q", e.Name, e.EntityType)
	}
	if !e.CreatedAt.Equal(want.Entities[0].CreatedAt) {
		t.Errorf("created_at drifted: %v != %v", e.CreatedAt, want.Entities[0].CreatedAt)
	}
	if len(e.Observations) != 1 || e.Observations[0].Content != "Hearing on Jan 8th." {
		t.Errorf("observations = %+v", e.Observations)
	}
	r := got.Relations[0]
	if r.From != "User" || r.To != "Case 404" || r.RelationType != "counsel" {
		t.Errorf("relation = %+v", r)
	}
}

func TestFileSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := NewFile(filepath.Join(dir, "memory.json"))
	if err := f.Save(sampleGraph()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "memory.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory contains %v, want only memory.json", names)
	}
}

func TestFileLoadsLegacyFormat(t *testing.T) {
	// Older files stored observations as bare strings and omitted
	// created_at. Facts must survive with timestamps backfilled from the
	// entity's provenance.
	legacy := `{
	  "entities": [
	    {
	      "name": "Case 404",
	      "entityType": "Professional",
	      "last_modified": "2025-06-01T10:00:00Z",
	      "observations": ["Hearing on Jan 8th.", {"content": "Judge assigned.", "timestamp": "2025-06-02T09:00:00Z"}]
	    }
	  ],
	  "relations": [
	    {"from": "Case 404", "to": "Case 404", "relationType": "self"}
	  ]
	}`
	path := filepath.Join(t.TempDir(), "memory.json")
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := NewFile(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	e := g.Entities[0]
	wantTime := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if !e.CreatedAt.Equal(wantTime) {
		t.Errorf("created_at = %v, want backfill from last_modified %v", e.CreatedAt, wantTime)
	}
	if len(e.Observations) != 2 {
		t.Fatalf("got %d observations, want 2", len(e.Observations))
	}
	if e.Observations[0].Content != "Hearing on Jan 8th." || !e.Observations[0].Timestamp.Equal(wantTime) {
		t.Errorf("legacy string observation = %+v", e.Observations[0])
	}
	if got := e.Observations[1].Timestamp; !got.Equal(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("structured observation timestamp = %v", got)
	}
	if g.Relations[0].CreatedAt.IsZero() {
		t.Error("relation created_at not backfilled")
	}
}

func TestFileSaveNormalizesNilSlices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	f := NewFile(path)
	if err := f.Save(&models.KnowledgeGraph{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"entities": []`, `"relations": []`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("saved document missing %s:\n%s", key, data)
		}
	}
}
