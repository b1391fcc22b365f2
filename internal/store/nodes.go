package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Clear removes every node and edge. A build always clears before inserting.
func (s *Store) Clear(ctx context.Context) error {
	for _, stmt := range []string{"DELETE FROM edges", "DELETE FROM nodes"} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear graph: %w", s.classify(err))
		}
	}
	return nil
}

// InsertNodes inserts nodes in a single transaction.
// Uses a prepared statement for efficiency.
func (s *Store) InsertNodes(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsertNode)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", s.classify(err))
	}
	defer stmt.Close()

	for _, n := range nodes {
		decorators, err := json.Marshal(n.Decorators)
		if err != nil {
			return err
		}
		var lineEnd sql.NullInt64
		if n.LineEnd != nil {
			lineEnd = sql.NullInt64{Int64: int64(*n.LineEnd), Valid: true}
		}
		isTest := 0
		if n.IsTest {
			isTest = 1
		}
		if _, err := stmt.ExecContext(ctx,
			n.ID, n.Kind, n.Name, n.FilePath, n.LineStart, lineEnd,
			n.Docstring, string(decorators), n.Visibility, isTest, n.Complexity, n.Summary,
		); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, s.classify(err))
		}
	}

	return s.classify(tx.Commit())
}

// Nodes returns nodes matching the filter, ordered by file and line.
func (s *Store) Nodes(ctx context.Context, filter NodeFilter) ([]*Node, error) {
	query := `SELECT id, kind, name, file_path, line_start, line_end, docstring, decorators,
		visibility, is_test, complexity, summary FROM nodes WHERE 1=1`
	args := []any{}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if filter.FilePath != "" {
		query += " AND file_path = ?"
		args = append(args, filter.FilePath)
	}
	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}
	if len(filter.IDs) > 0 {
		query += " AND id IN (?" + strings.Repeat(", ?", len(filter.IDs)-1) + ")"
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY file_path, line_start, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", s.classify(err))
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		var (
			n          Node
			lineEnd    sql.NullInt64
			docstring  sql.NullString
			decorators sql.NullString
			visibility sql.NullString
			summary    sql.NullString
			isTest     int
		)
		if err := rows.Scan(&n.ID, &n.Kind, &n.Name, &n.FilePath, &n.LineStart, &lineEnd,
			&docstring, &decorators, &visibility, &isTest, &n.Complexity, &summary); err != nil {
			return nil, fmt.Errorf("scan node: %w", s.classify(err))
		}
		if lineEnd.Valid {
			v := int(lineEnd.Int64)
			n.LineEnd = &v
		}
		n.Docstring = docstring.String
		n.Visibility = visibility.String
		n.Summary = summary.String
		n.IsTest = isTest != 0
		if decorators.Valid && decorators.String != "" && decorators.String != "null" {
			if err := json.Unmarshal([]byte(decorators.String), &n.Decorators); err != nil {
				return nil, fmt.Errorf("decode decorators for %s: %w", n.ID, err)
			}
		}
		nodes = append(nodes, &n)
	}

	return nodes, s.classify(rows.Err())
}

// Node returns a single node by ID, or nil if it does not exist.
func (s *Store) Node(ctx context.Context, id string) (*Node, error) {
	nodes, err := s.Nodes(ctx, NodeFilter{IDs: []string{id}})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

// Stats returns node and edge counts grouped by kind and relation.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{NodesByKind: map[string]int{}, EdgesByRel: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM nodes GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("count nodes: %w", s.classify(err))
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, s.classify(err)
		}
		st.NodesByKind[kind] = n
		st.Nodes += n
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx, "SELECT rel, COUNT(*) FROM edges GROUP BY rel")
	if err != nil {
		return nil, fmt.Errorf("count edges: %w", s.classify(err))
	}
	defer rows.Close()
	for rows.Next() {
		var rel string
		var n int
		if err := rows.Scan(&rel, &n); err != nil {
			return nil, s.classify(err)
		}
		st.EdgesByRel[rel] = n
		st.Edges += n
	}

	return st, s.classify(rows.Err())
}
