package store

import (
	"context"
	"fmt"
	"strings"
)

// InsertEdges inserts edges in a single transaction.
// Duplicate (from, to, rel) triples collapse into one row.
func (s *Store) InsertEdges(ctx context.Context, edges []*Edge) error {
	if len(edges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsertEdge)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", s.classify(err))
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.FromID, e.ToID, e.Rel); err != nil {
			return fmt.Errorf("insert edge %s -%s-> %s: %w", e.FromID, e.Rel, e.ToID, s.classify(err))
		}
	}

	return s.classify(tx.Commit())
}

// Edges returns edges matching the filter.
// If filter.FromID is set, returns edges leaving that node.
// If filter.ToID is set, returns edges entering that node.
// If filter.Rels is set, only those relations are returned.
func (s *Store) Edges(ctx context.Context, filter EdgeFilter) ([]*Edge, error) {
	query := `SELECT from_id, to_id, rel FROM edges WHERE 1=1`
	args := []any{}

	if filter.FromID != "" {
		query += " AND from_id = ?"
		args = append(args, filter.FromID)
	}
	if filter.ToID != "" {
		query += " AND to_id = ?"
		args = append(args, filter.ToID)
	}
	if len(filter.Rels) > 0 {
		query += " AND rel IN (?" + strings.Repeat(", ?", len(filter.Rels)-1) + ")"
		for _, r := range filter.Rels {
			args = append(args, r)
		}
	}
	query += " ORDER BY from_id, rel, to_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", s.classify(err))
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.FromID, &e.ToID, &e.Rel); err != nil {
			return nil, fmt.Errorf("scan edge: %w", s.classify(err))
		}
		edges = append(edges, &e)
	}

	return edges, s.classify(rows.Err())
}
