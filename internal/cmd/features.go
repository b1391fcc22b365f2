package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/features"
	"github.com/Emberfield/autodoc/internal/summarizer"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Detect and name features (clusters of related files)",
	Long: `Detect and name features.

Files are projected onto a weighted file graph (IMPORTS and, unless
disabled, CALLS between files) and partitioned with Louvain community
detection. Each community is a feature. Naming asks the configured LLM for a
business-domain name from the feature's most central files.

Examples:
  autodoc features detect               # Detect (reuses a fresh cache)
  autodoc features detect --force       # Recompute even if the graph is unchanged
  autodoc features detect --name        # Detect, then name unnamed features
  autodoc features list
  autodoc features show 3
  autodoc features rename 3 checkout-flow --display-name "Checkout Flow"`,
}

var featuresDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Cluster files into features",
	RunE:  runFeaturesDetect,
}

var featuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List detected features",
	RunE:  runFeaturesList,
}

var featuresShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one feature with all its files",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeaturesShow,
}

var featuresRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Set a feature's name by hand",
	Args:  cobra.ExactArgs(2),
	RunE:  runFeaturesRename,
}

var (
	featuresForce       bool
	featuresName        bool
	featuresRenameAll   bool
	featuresDisplayName string
	featuresReasoning   string
)

func init() {
	rootCmd.AddCommand(featuresCmd)
	featuresCmd.AddCommand(featuresDetectCmd, featuresListCmd, featuresShowCmd, featuresRenameCmd)

	featuresDetectCmd.Flags().BoolVar(&featuresForce, "force", false, "Recompute even when the cached result matches the graph")
	featuresDetectCmd.Flags().BoolVar(&featuresName, "name", false, "Name unnamed features with the configured LLM")
	featuresDetectCmd.Flags().BoolVar(&featuresRenameAll, "rename-all", false, "With --name, rename features that already have a name")

	featuresRenameCmd.Flags().StringVar(&featuresDisplayName, "display-name", "", "Human-readable name (default: derived from <name>)")
	featuresRenameCmd.Flags().StringVar(&featuresReasoning, "reasoning", "", "Why this name fits")
}

// featureRow is the list view of one feature.
type featureRow struct {
	ID          int                   `json:"id" yaml:"id"`
	Name        string                `json:"name" yaml:"name"`
	Named       bool                  `json:"named" yaml:"named"`
	FileCount   int                   `json:"file_count" yaml:"file_count"`
	SampleFiles []features.SampleFile `json:"sample_files" yaml:"sample_files"`
}

type featuresReport struct {
	RunID          string                `json:"run_id" yaml:"run_id"`
	Algorithm      string                `json:"algorithm" yaml:"algorithm"`
	CommunityCount int                   `json:"community_count" yaml:"community_count"`
	Modularity     float64               `json:"modularity" yaml:"modularity"`
	Levels         int                   `json:"ran_levels" yaml:"ran_levels"`
	DetectedAt     time.Time             `json:"detected_at" yaml:"detected_at"`
	Cached         bool                  `json:"cached,omitempty" yaml:"cached,omitempty"`
	Stale          bool                  `json:"stale,omitempty" yaml:"stale,omitempty"`
	Naming         *features.NamingStats `json:"naming,omitempty" yaml:"naming,omitempty"`
	Features       []featureRow          `json:"features" yaml:"features"`
}

func newFeaturesReport(res *features.Result) *featuresReport {
	r := &featuresReport{
		RunID:          res.RunID,
		Algorithm:      res.Algorithm,
		CommunityCount: res.CommunityCount,
		Modularity:     res.Modularity,
		Levels:         res.Levels,
		DetectedAt:     res.DetectedAt,
		Features:       []featureRow{},
	}
	for _, f := range res.List() {
		r.Features = append(r.Features, featureRow{
			ID:          f.ID,
			Name:        f.Label(),
			Named:       f.Named(),
			FileCount:   f.FileCount,
			SampleFiles: f.SampleFiles,
		})
	}
	return r
}

func runFeaturesDetect(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	s, err := ws.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	fc := ws.cfg.Features
	d := features.NewDetector(s, features.Options{
		Projection: features.ProjectionOptions{
			IncludeCalls: fc.CallsIncluded(),
			MaxDegree:    fc.MaxDegree,
			Exclude:      fc.Exclude,
		},
		Louvain:    features.LouvainOptions{Resolution: fc.Resolution, Seed: fc.Seed},
		SampleSize: fc.SampleSize,
		Logger:     ws.logger,
	})
	art := ws.artifact()

	var res *features.Result
	cached := false
	if !featuresForce {
		hash, err := d.GraphHash(ctx)
		if err != nil {
			return err
		}
		if !art.IsStale(hash) {
			prev, err := art.Load()
			if err != nil {
				return err
			}
			if sameParameters(prev, fc.Seed, fc.Resolution, fc.MaxDegree, fc.CallsIncluded()) {
				res, cached = prev, true
				ws.logger.Info("graph unchanged, reusing cached features", "path", art.Path())
			}
		}
	}
	if res == nil {
		if res, err = d.Detect(ctx); err != nil {
			return err
		}
	}

	if !cached {
		if err := art.Save(res); err != nil {
			return err
		}
	}

	var stats *features.NamingStats
	if featuresName {
		st, err := nameFeatures(cmd, ws, res)
		if st.Named+st.FromCache > 0 {
			if serr := art.Save(res); serr != nil {
				return serr
			}
		}
		if err != nil {
			return err
		}
		stats = &st
	}

	report := newFeaturesReport(res)
	report.Cached = cached
	report.Naming = stats
	return printResult(cmd, report)
}

// sameParameters reports whether res was detected with these settings.
func sameParameters(res *features.Result, seed int64, resolution float64, maxDegree int, includeCalls bool) bool {
	return res.Seed == seed && res.Resolution == resolution &&
		res.MaxDegree == maxDegree && res.IncludeCalls == includeCalls
}

func nameFeatures(cmd *cobra.Command, ws *workspace, res *features.Result) (features.NamingStats, error) {
	sum, err := ws.newSummarizer()
	if errors.Is(err, summarizer.ErrNotConfigured) {
		return features.NamingStats{}, fmt.Errorf("%w: set llm.api_key or OPENAI_API_KEY, or use provider ollama", err)
	}
	if err != nil {
		return features.NamingStats{}, err
	}

	names, err := ws.openCache()
	if err != nil {
		return features.NamingStats{}, err
	}
	defer names.Close()

	fc := ws.cfg.Features
	namer := features.NewNamer(sum, names, features.NamerOptions{
		MaxCalls:    fc.MaxNamingCalls,
		Concurrency: fc.NamingConcurrency,
		Logger:      ws.logger,
	})
	return namer.NameAll(cmdContext(cmd), res, featuresRenameAll)
}

func runFeaturesList(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	res, err := ws.loadFeatures()
	if err != nil {
		return err
	}

	report := newFeaturesReport(res)

	// Staleness is advisory; an unreachable store doesn't hide the cached result.
	ctx := cmdContext(cmd)
	if s, err := ws.openStore(ctx); err == nil {
		defer s.Close()
		d := features.NewDetector(s, features.Options{Logger: ws.logger})
		if hash, err := d.GraphHash(ctx); err == nil {
			report.Stale = hash != res.GraphHash
		}
	}
	return printResult(cmd, report)
}

func parseFeatureID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid feature id %q", s)
	}
	return id, nil
}

func runFeaturesShow(cmd *cobra.Command, args []string) error {
	id, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	res, err := ws.loadFeatures()
	if err != nil {
		return err
	}
	f, err := res.Get(id)
	if err != nil {
		return err
	}
	return printResult(cmd, f)
}

func runFeaturesRename(cmd *cobra.Command, args []string) error {
	id, err := parseFeatureID(args[0])
	if err != nil {
		return err
	}
	name, err := features.ParseName(fmt.Sprintf(`{"name": %q, "display_name": %q, "reasoning": %q}`,
		args[1], featuresDisplayName, featuresReasoning))
	if err != nil {
		return fmt.Errorf("invalid feature name %q", args[1])
	}

	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	f, err := ws.artifact().UpdateFeatureName(id, name.Name, name.DisplayName, name.Reasoning)
	if errors.Is(err, features.ErrNoFeatures) {
		return fmt.Errorf("%w: run 'autodoc features detect' first", err)
	}
	if err != nil {
		return err
	}
	return printResult(cmd, f)
}
