package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/query"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Structural queries over the code graph",
	Long: `Structural queries over the code graph.

Examples:
  autodoc query deps src/auth/login.py --transitive
  autodoc query entry-points
  autodoc query coverage
  autodoc query patterns
  autodoc query complexity --limit 10`,
}

var queryDepsCmd = &cobra.Command{
	Use:   "deps <node-id|file|name>",
	Short: "Show what a node imports and what imports it",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryDeps,
}

var queryEntryPointsCmd = &cobra.Command{
	Use:   "entry-points",
	Short: "List route handlers, CLI commands, mains and other roots",
	RunE:  runQueryEntryPoints,
}

var queryCoverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Estimate which functions have matching tests",
	RunE:  runQueryCoverage,
}

var queryPatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Detect singletons, factories, API endpoints and test suites",
	RunE:  runQueryPatterns,
}

var queryComplexityCmd = &cobra.Command{
	Use:   "complexity",
	Short: "Rank files by structural complexity",
	RunE:  runQueryComplexity,
}

var (
	queryTransitive bool
	queryLimit      int
)

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(queryDepsCmd, queryEntryPointsCmd, queryCoverageCmd, queryPatternsCmd, queryComplexityCmd)

	queryDepsCmd.Flags().BoolVar(&queryTransitive, "transitive", false, "Follow imports transitively in both directions")
	queryComplexityCmd.Flags().IntVar(&queryLimit, "limit", 20, "Maximum files to show (0 for all)")
}

// withEngine opens the store, runs fn on a query engine and prints its result.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *query.Engine) (interface{}, error)) error {
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

	v, err := fn(ctx, query.New(s, ws.logger))
	if err != nil {
		return err
	}
	return printResult(cmd, v)
}

func runQueryDeps(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *query.Engine) (interface{}, error) {
		return e.Dependencies(ctx, args[0], queryTransitive)
	})
}

func runQueryEntryPoints(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *query.Engine) (interface{}, error) {
		return e.EntryPoints(ctx)
	})
}

func runQueryCoverage(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *query.Engine) (interface{}, error) {
		return e.TestCoverage(ctx)
	})
}

func runQueryPatterns(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *query.Engine) (interface{}, error) {
		return e.CodePatterns(ctx)
	})
}

func runQueryComplexity(cmd *cobra.Command, args []string) error {
	return withEngine(cmd, func(ctx context.Context, e *query.Engine) (interface{}, error) {
		stats, err := e.ModuleComplexity(ctx)
		if err != nil {
			return nil, err
		}
		if queryLimit > 0 && len(stats) > queryLimit {
			stats = stats[:queryLimit]
		}
		return stats, nil
	})
}
