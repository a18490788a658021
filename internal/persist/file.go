package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calebreed/recall/internal/models"
)

// FileAdapter persists the graph as a single human-inspectable JSON
// document. Writes go to a temp file in the same directory followed by a
// rename, so a crash mid-write never leaves a partial file behind.
type FileAdapter struct {
	path string
}

// NewFile returns an adapter writing to path. The file does not need to
// exist yet.
func NewFile(path string) *FileAdapter {
	return &FileAdapter{path: path}
}

// Path returns the configured memory file path.
func (f *FileAdapter) Path() string { return f.path }

func (f *FileAdapter) Load() (*models.KnowledgeGraph, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}, nil
	}
	return decodeGraph(data)
}

func (f *FileAdapter) Save(g *models.KnowledgeGraph) error {
	if g.Entities == nil {
		g.Entities = []models.Entity{}
	}
	if g.Relations == nil {
		g.Relations = []models.Relation{}
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".memory-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace memory file: %w", err)
	}
	return nil
}

func (f *FileAdapter) Close() error { return nil }

// --- tolerant decoding ---

// Earlier memory files stored observations as bare strings and omitted
// created_at on entities and relations. decodeGraph accepts both shapes
// and backfills timestamps from whatever provenance survives.
func decodeGraph(data []byte) (*models.KnowledgeGraph, error) {
	var raw struct {
		Entities []struct {
			Name         string            `json:"name"`
			EntityType   string            `json:"entityType"`
			CreatedAt    *time.Time        `json:"created_at"`
			LastModified *time.Time        `json:"last_modified"`
			Observations []json.RawMessage `json:"observations"`
		} `json:"entities"`
		Relations []struct {
			From         string     `json:"from"`
			To           string     `json:"to"`
			RelationType string     `json:"relationType"`
			CreatedAt    *time.Time `json:"created_at"`
		} `json:"relations"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode memory file: %w", err)
	}

	now := time.Now()
	g := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}

	for _, re := range raw.Entities {
		created := now
		switch {
		case re.CreatedAt != nil:
			created = *re.CreatedAt
		case re.LastModified != nil:
			created = *re.LastModified
		}
		modified := created
		if re.LastModified != nil {
			modified = *re.LastModified
		}

		e := models.Entity{
			Name:         re.Name,
			EntityType:   re.EntityType,
			CreatedAt:    created,
			LastModified: modified,
			Observations: []models.Observation{},
		}
		for _, ro := range re.Observations {
			obs, err := decodeObservation(ro, created)
			if err != nil {
				return nil, fmt.Errorf("entity %q: %w", re.Name, err)
			}
			e.Observations = append(e.Observations, obs)
		}
		g.Entities = append(g.Entities, e)
	}

	for _, rr := range raw.Relations {
		created := now
		if rr.CreatedAt != nil {
			created = *rr.CreatedAt
		}
		g.Relations = append(g.Relations, models.Relation{
			From:         rr.From,
			To:           rr.To,
			RelationType: rr.RelationType,
			CreatedAt:    created,
		})
	}

	return g, nil
}

func decodeObservation(raw json.RawMessage, fallback time.Time) (models.Observation, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return models.Observation{Content: s, Timestamp: fallback}, nil
	}
	var o models.Observation
	if err := json.Unmarshal(raw, &o); err != nil {
		return models.Observation{}, fmt.Errorf("decode observation: %w", err)
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = fallback
	}
	return o, nil
}
