package store

import (
	"context"
	"fmt"
)

// Versioned reports whether the backend keeps commit history.
func (s *Store) Versioned() bool {
	return s.backend == BackendDolt || s.backend == BackendDoltServer
}

// Commit records the current graph as a Dolt commit and returns its hash.
// It is a no-op on unversioned backends and when nothing changed.
func (s *Store) Commit(ctx context.Context, message string) (string, error) {
	if !s.Versioned() {
		return "", nil
	}

	if _, err := s.db.ExecContext(ctx, "CALL DOLT_ADD('-A')"); err != nil {
		return "", fmt.Errorf("dolt add: %w", s.classify(err))
	}

	var hash string
	err := s.db.QueryRowContext(ctx, "CALL DOLT_COMMIT('--allow-empty', '-m', ?)", message).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("dolt commit: %w", s.classify(err))
	}
	return hash, nil
}

// LogEntry is one commit of the graph history.
type LogEntry struct {
	CommitHash string `json:"commit_hash" yaml:"commit_hash"`
	Committer  string `json:"committer" yaml:"committer"`
	Date       string `json:"date" yaml:"date"`
	Message    string `json:"message" yaml:"message"`
}

// Log returns recent graph commits, newest first. Unversioned backends return nil.
func (s *Store) Log(ctx context.Context, limit int) ([]LogEntry, error) {
	if !s.Versioned() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT commit_hash, committer, date, message
		FROM dolt_log
		ORDER BY date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("dolt log query: %w", s.classify(err))
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.CommitHash, &e.Committer, &e.Date, &e.Message); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", s.classify(err))
		}
		entries = append(entries, e)
	}
	return entries, s.classify(rows.Err())
}
