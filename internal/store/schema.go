package store

import (
	"context"
	"fmt"
)

// dialect holds the statements that differ between SQLite and the
// MySQL-compatible Dolt engines.
type dialect struct {
	name       string
	schema     []string
	upsertNode string
	upsertEdge string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,              -- File, Function, Class, Method
    name TEXT NOT NULL,
    file_path TEXT NOT NULL,
    line_start INTEGER NOT NULL DEFAULT 0,
    line_end INTEGER,
    docstring TEXT,
    decorators TEXT,                 -- JSON array
    visibility TEXT,
    is_test INTEGER NOT NULL DEFAULT 0,
    complexity INTEGER NOT NULL DEFAULT 0,
    summary TEXT
)`,
		`CREATE TABLE IF NOT EXISTS edges (
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    rel TEXT NOT NULL,               -- CONTAINS, HAS_METHOD, IMPORTS, CALLS
    PRIMARY KEY (from_id, to_id, rel)
)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_kind ON nodes(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_file ON nodes(file_path)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_id)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_rel ON edges(rel)`,
	},
	upsertNode: `INSERT OR REPLACE INTO nodes
    (id, kind, name, file_path, line_start, line_end, docstring, decorators, visibility, is_test, complexity, summary)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	upsertEdge: `INSERT OR REPLACE INTO edges (from_id, to_id, rel) VALUES (?, ?, ?)`,
}

// Dolt has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS nodes (
    id VARCHAR(512) PRIMARY KEY,
    kind VARCHAR(16) NOT NULL,
    name VARCHAR(512) NOT NULL,
    file_path VARCHAR(1024) NOT NULL,
    line_start INT NOT NULL DEFAULT 0,
    line_end INT,
    docstring TEXT,
    decorators TEXT,
    visibility VARCHAR(32),
    is_test TINYINT NOT NULL DEFAULT 0,
    complexity INT NOT NULL DEFAULT 0,
    summary TEXT,
    INDEX idx_nodes_kind (kind),
    INDEX idx_nodes_file (file_path),
    INDEX idx_nodes_name (name)
)`,
		`CREATE TABLE IF NOT EXISTS edges (
    from_id VARCHAR(512) NOT NULL,
    to_id VARCHAR(512) NOT NULL,
    rel VARCHAR(16) NOT NULL,
    PRIMARY KEY (from_id, to_id, rel),
    INDEX idx_edges_to (to_id),
    INDEX idx_edges_rel (rel)
)`,
	},
	upsertNode: `REPLACE INTO nodes
    (id, kind, name, file_path, line_start, line_end, docstring, decorators, visibility, is_test, complexity, summary)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	upsertEdge: `REPLACE INTO edges (from_id, to_id, rel) VALUES (?, ?, ?)`,
}

// initSchema creates the tables and indexes if they don't exist.
// Statements run one at a time; not every driver accepts multi-statement Exec.
func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}
