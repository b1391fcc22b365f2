package features

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Emberfield/autodoc/internal/logging"
)

// ArtifactFileName is the features cache file inside the state directory.
const ArtifactFileName = "features_cache.json"

// Artifact persists detection results as JSON.
type Artifact struct {
	path   string
	logger *slog.Logger
}

// NewArtifact returns the artifact stored under dir (usually .autodoc).
func NewArtifact(dir string, logger *slog.Logger) *Artifact {
	return &Artifact{
		path:   filepath.Join(dir, ArtifactFileName),
		logger: logging.OrDiscard(logger),
	}
}

// Path returns the artifact file path.
func (a *Artifact) Path() string {
	return a.path
}

// Load reads the artifact. A missing file or a version mismatch yields
// ErrNoFeatures.
func (a *Artifact) Load() (*Result, error) {
	data, err := os.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoFeatures
	}
	if err != nil {
		return nil, fmt.Errorf("read features cache: %w", err)
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parse features cache %s: %w", a.path, err)
	}
	if res.Version != ResultVersion {
		a.logger.Warn("features cache version mismatch, ignoring", "path", a.path, "version", res.Version)
		return nil, ErrNoFeatures
	}
	if res.Features == nil {
		res.Features = make(map[int]*Feature)
	}
	return &res, nil
}

// Save writes res, replacing any previous artifact.
func (a *Artifact) Save(res *Result) error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	res.Version = ResultVersion
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encode features cache: %w", err)
	}

	tmp := a.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write features cache: %w", err)
	}
	if err := os.Rename(tmp, a.path); err != nil {
		return fmt.Errorf("write features cache: %w", err)
	}
	a.logger.Debug("saved features cache", "path", a.path, "features", len(res.Features))
	return nil
}

// IsStale reports whether the artifact is missing, unreadable, or was
// computed for another graph.
func (a *Artifact) IsStale(graphHash string) bool {
	res, err := a.Load()
	if err != nil {
		return true
	}
	return res.GraphHash != graphHash
}

// UpdateFeatureName renames one feature in place.
func (a *Artifact) UpdateFeatureName(id int, name, displayName, reasoning string) (*Feature, error) {
	res, err := a.Load()
	if err != nil {
		return nil, err
	}
	f, err := res.Get(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	f.Name = name
	f.DisplayName = displayName
	f.Reasoning = reasoning
	f.NamedAt = &now

	if err := a.Save(res); err != nil {
		return nil, err
	}
	return f, nil
}
