package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Emberfield/autodoc/internal/cache"
	"github.com/Emberfield/autodoc/internal/logging"
	"github.com/Emberfield/autodoc/internal/summarizer"
)

// NameCache stores names by feature membership key.
type NameCache interface {
	GetFeatureName(ctx context.Context, key string) (*cache.FeatureName, error)
	SetFeatureName(ctx context.Context, fn *cache.FeatureName) error
}

// NamerOptions configures a Namer.
type NamerOptions struct {
	// MaxCalls caps summarizer calls per run. Zero means no cap.
	MaxCalls int
	// Concurrency bounds in-flight summarizer calls.
	Concurrency int
	Logger      *slog.Logger
}

// Namer names features with a summarizer. Names are reused from the cache
// while a feature's membership is unchanged.
type Namer struct {
	sum    summarizer.Summarizer
	names  NameCache
	opts   NamerOptions
	logger *slog.Logger
}

// NewNamer creates a namer. names may be nil.
func NewNamer(sum summarizer.Summarizer, names NameCache, opts NamerOptions) *Namer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Namer{sum: sum, names: names, opts: opts, logger: logging.OrDiscard(opts.Logger)}
}

// NamingStats counts what happened to each feature during NameAll.
type NamingStats struct {
	Named     int `json:"named" yaml:"named"`
	FromCache int `json:"from_cache" yaml:"from_cache"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Capped    int `json:"capped" yaml:"capped"`
	Failed    int `json:"failed" yaml:"failed"`
}

// NameAll names the features of res in place. Already named features are
// skipped unless force is set. A failed call leaves its feature unnamed and
// the batch continues; only cancellation aborts.
func (n *Namer) NameAll(ctx context.Context, res *Result, force bool) (NamingStats, error) {
	var stats NamingStats
	if n.sum == nil {
		return stats, summarizer.ErrNotConfigured
	}

	var pending []*Feature
	for _, f := range res.List() {
		if f.FileCount == 0 || (f.Named() && !force) {
			stats.Skipped++
			continue
		}
		if !force && n.fromCache(ctx, f) {
			stats.FromCache++
			continue
		}
		if n.opts.MaxCalls > 0 && len(pending) >= n.opts.MaxCalls {
			stats.Capped++
			continue
		}
		pending = append(pending, f)
	}
	if stats.Capped > 0 {
		n.logger.Warn("naming call cap reached, leaving features unnamed",
			"max_calls", n.opts.MaxCalls, "unnamed", stats.Capped)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.opts.Concurrency)
	for _, f := range pending {
		f := f
		g.Go(func() error {
			err := n.nameOne(gctx, f)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				stats.Failed++
				n.logger.Warn("failed to name feature", "feature", f.ID, "error", err)
				return nil
			}
			stats.Named++
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (n *Namer) fromCache(ctx context.Context, f *Feature) bool {
	if n.names == nil {
		return false
	}
	fn, err := n.names.GetFeatureName(ctx, f.Key)
	if err != nil {
		n.logger.Debug("feature name cache lookup failed", "feature", f.ID, "error", err)
		return false
	}
	if fn == nil {
		return false
	}
	namedAt := fn.NamedAt
	f.Name, f.DisplayName, f.Reasoning, f.NamedAt = fn.Name, fn.DisplayName, fn.Reasoning, &namedAt
	return true
}

func (n *Namer) nameOne(ctx context.Context, f *Feature) error {
	text, err := n.sum.Summarize(ctx, Prompt(f))
	if err != nil {
		return err
	}
	name, err := ParseName(text)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	f.Name, f.DisplayName, f.Reasoning, f.NamedAt = name.Name, name.DisplayName, name.Reasoning, &now

	if n.names != nil {
		err := n.names.SetFeatureName(ctx, &cache.FeatureName{
			Key:         f.Key,
			Name:        f.Name,
			DisplayName: f.DisplayName,
			Reasoning:   f.Reasoning,
			NamedAt:     now,
		})
		if err != nil {
			n.logger.Warn("could not cache feature name", "feature", f.ID, "error", err)
		}
	}
	return nil
}

// Prompt builds the naming prompt for f from its sample files.
func Prompt(f *Feature) string {
	var lines []string
	for i, s := range f.SampleFiles {
		summary := s.Summary
		if summary == "" {
			summary = "(no summary available)"
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %s", i+1, s.Path, summary))
	}
	if len(lines) == 0 {
		for i, p := range f.Files {
			if i == DefaultSampleSize {
				break
			}
			lines = append(lines, fmt.Sprintf("%d. %s - (no summary available)", i+1, p))
		}
	}

	return fmt.Sprintf(`Analyze this code cluster (Feature ID: %d, %d files).

Key Files & their Responsibilities:
%s

Task: Name this feature based on its BUSINESS DOMAIN purpose.

Rules:
- NO generic names like "Utils", "Helpers", "Common", "Shared", "Core", "Base"
- Focus on WHAT the code does (e.g., "Checkout Flow", "User Onboarding", "Payment Processing")
- 2-4 words maximum

Respond in JSON:
{"name": "feature-name-here", "display_name": "Feature Name Here", "reasoning": "..."}`,
		f.ID, f.FileCount, strings.Join(lines, "\n"))
}

// Name is a parsed naming response.
type Name struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Reasoning   string `json:"reasoning"`
}

// ErrBadResponse is returned for summarizer output that holds no usable name.
var ErrBadResponse = errors.New("unusable naming response")

// ParseName extracts the JSON object from a summarizer reply. Markdown code
// fences and surrounding prose are tolerated. The name is normalised to
// kebab-case and a missing display name is derived from it.
func ParseName(text string) (Name, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Name{}, fmt.Errorf("%w: no JSON object", ErrBadResponse)
	}

	var n Name
	if err := json.Unmarshal([]byte(text[start:end+1]), &n); err != nil {
		return Name{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	n.Name = kebab(n.Name)
	if n.Name == "" {
		return Name{}, fmt.Errorf("%w: empty name", ErrBadResponse)
	}
	n.DisplayName = strings.TrimSpace(n.DisplayName)
	if n.DisplayName == "" {
		n.DisplayName = titleFromKebab(n.Name)
	}
	n.Reasoning = strings.TrimSpace(n.Reasoning)
	return n, nil
}

func kebab(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '/'
	})
	return strings.Join(fields, "-")
}

func titleFromKebab(s string) string {
	parts := strings.Split(s, "-")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
