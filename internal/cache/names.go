package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FeatureName is a summarizer-produced name for a feature.
type FeatureName struct {
	Key         string    `json:"key" yaml:"key"`
	Name        string    `json:"name" yaml:"name"`
	DisplayName string    `json:"display_name" yaml:"display_name"`
	Reasoning   string    `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	NamedAt     time.Time `json:"named_at" yaml:"named_at"`
}

// GetFeatureName returns the cached name for a membership key, or nil.
func (c *Cache) GetFeatureName(ctx context.Context, key string) (*FeatureName, error) {
	var (
		fn        FeatureName
		reasoning sql.NullString
		namedAt   string
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT membership_key, name, display_name, reasoning, named_at
		FROM feature_names WHERE membership_key = ?`, key).
		Scan(&fn.Key, &fn.Name, &fn.DisplayName, &reasoning, &namedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get feature name %s: %w", key, err)
	}
	fn.Reasoning = reasoning.String
	fn.NamedAt, _ = time.Parse(time.RFC3339, namedAt)
	return &fn, nil
}

// SetFeatureName stores a name for a membership key, replacing any previous one.
func (c *Cache) SetFeatureName(ctx context.Context, fn *FeatureName) error {
	namedAt := fn.NamedAt
	if namedAt.IsZero() {
		namedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO feature_names (membership_key, name, display_name, reasoning, named_at)
		VALUES (?, ?, ?, ?, ?)`,
		fn.Key, fn.Name, fn.DisplayName, fn.Reasoning, namedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set feature name %s: %w", fn.Key, err)
	}
	return nil
}
