package persist

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/calebreed/recall/internal/models"
)

// sqliteSchema mirrors the JSON document: the graph is still persisted as
// one full snapshot, rows are just easier to query ad hoc when the graph
// outgrows eyeballing a JSON file. Relation endpoints are stored by name,
// matching the in-memory model.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entities (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL UNIQUE,
    entity_type   TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    last_modified TEXT NOT NULL,
    position      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
    id          TEXT PRIMARY KEY,
    entity_name TEXT NOT NULL REFERENCES entities(name) ON DELETE CASCADE,
    content     TEXT NOT NULL,
    timestamp   TEXT NOT NULL,
    position    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS relations (
    id            TEXT PRIMARY KEY,
    from_entity   TEXT NOT NULL,
    to_entity     TEXT NOT NULL,
    relation_type TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    position      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_observations_entity ON observations(entity_name);
`

// SQLiteAdapter persists snapshots into a SQLite database file. Each Save
// replaces the previous snapshot inside a single transaction, which gives
// the same all-or-nothing replacement guarantee as the temp-and-rename
// JSON file.
type SQLiteAdapter struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the
// schema exists.
func OpenSQLite(path string) (*SQLiteAdapter, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping snapshot db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate snapshot db: %w", err)
	}
	return &SQLiteAdapter{db: db}, nil
}

func (a *SQLiteAdapter) Load() (*models.KnowledgeGraph, error) {
	g := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}

	rows, err := a.db.Query(
		`SELECT name, entity_type, created_at, last_modified FROM entities ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Entity
		var created, modified string
		if err := rows.Scan(&e.Name, &e.EntityType, &created, &modified); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("entity %q created_at: %w", e.Name, err)
		}
		if e.LastModified, err = parseTime(modified); err != nil {
			return nil, fmt.Errorf("entity %q last_modified: %w", e.Name, err)
		}
		e.Observations = []models.Observation{}
		g.Entities = append(g.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range g.Entities {
		obs, err := a.loadObservations(g.Entities[i].Name)
		if err != nil {
			return nil, err
		}
		g.Entities[i].Observations = obs
	}

	relRows, err := a.db.Query(
		`SELECT from_entity, to_entity, relation_type, created_at FROM relations ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("query relations: %w", err)
	}
	defer relRows.Close()

	for relRows.Next() {
		var r models.Relation
		var created string
		if err := relRows.Scan(&r.From, &r.To, &r.RelationType, &created); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("relation created_at: %w", err)
		}
		g.Relations = append(g.Relations, r)
	}
	return g, relRows.Err()
}

func (a *SQLiteAdapter) loadObservations(entityName string) ([]models.Observation, error) {
	rows, err := a.db.Query(
		`SELECT content, timestamp FROM observations WHERE entity_name = ? ORDER BY position`,
		entityName,
	)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	obs := []models.Observation{}
	for rows.Next() {
		var o models.Observation
		var ts string
		if err := rows.Scan(&o.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if o.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("observation timestamp: %w", err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func (a *SQLiteAdapter) Save(g *models.KnowledgeGraph) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"observations", "relations", "entities"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, e := range g.Entities {
		_, err := tx.Exec(
			`INSERT INTO entities (id, name, entity_type, created_at, last_modified, position) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), e.Name, e.EntityType, formatTime(e.CreatedAt), formatTime(e.LastModified), i,
		)
		if err != nil {
			return fmt.Errorf("insert entity %q: %w", e.Name, err)
		}
		for j, o := range e.Observations {
			_, err := tx.Exec(
				`INSERT INTO observations (id, entity_name, content, timestamp, position) VALUES (?, ?, ?, ?, ?)`,
				uuid.New().String(), e.Name, o.Content, formatTime(o.Timestamp), j,
			)
			if err != nil {
				return fmt.Errorf("insert observation for %q: %w", e.Name, err)
			}
		}
	}

	for i, r := range g.Relations {
		_, err := tx.Exec(
			`INSERT INTO relations (id, from_entity, to_entity, relation_type, created_at, position) VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), r.From, r.To, r.RelationType, formatTime(r.CreatedAt), i,
		)
		if err != nil {
			return fmt.Errorf("insert relation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
