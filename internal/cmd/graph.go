package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/builder"
	"github.com/Emberfield/autodoc/internal/entity"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Build and inspect the code graph",
}

var graphBuildCmd = &cobra.Command{
	Use:   "build <entities-file>",
	Short: "Build the code graph from parser output",
	Long: `Build the code graph from parser output.

The input is a JSON document ({"files": [...], "entities": [...]}), a JSON
array of entity records, JSON Lines (.jsonl) or YAML. Building clears the
store first, so the result reflects exactly this input.

Examples:
  autodoc graph build entities.jsonl
  autodoc graph build out.json --calls syntax
  autodoc graph build out.json --calls none`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphBuild,
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show node and edge counts",
	RunE:  runGraphStats,
}

var graphLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Show graph build history (dolt backends)",
	RunE:  runGraphLog,
}

var (
	graphBuildCalls string
	graphLogLimit   int
)

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.AddCommand(graphBuildCmd, graphStatsCmd, graphLogCmd)

	graphBuildCmd.Flags().StringVar(&graphBuildCalls, "calls", "", "CALLS detection: name|syntax|none (default from config)")
	graphLogCmd.Flags().IntVar(&graphLogLimit, "limit", 20, "Maximum commits to show")
}

func runGraphBuild(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	doc, err := entity.LoadFile(args[0])
	if err != nil {
		return err
	}
	for _, sk := range doc.Skipped {
		ws.logger.Warn("skipped malformed record", "line", sk.Line, "reason", sk.Reason)
	}

	mode := graphBuildCalls
	if mode == "" {
		mode = ws.cfg.Builder.CallDetection
	}
	calls, err := builder.NewCallDetector(mode)
	if err != nil {
		return err
	}

	s, err := ws.openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := builder.New(s, builder.Options{
		Calls:  calls,
		Commit: ws.cfg.Graph.CommitBuilds,
		Logger: ws.logger,
	}).Build(ctx, doc)
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	return printResult(cmd, res)
}

func runGraphStats(cmd *cobra.Command, args []string) error {
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

	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	return printResult(cmd, stats)
}

func runGraphLog(cmd *cobra.Command, args []string) error {
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

	if !s.Versioned() {
		return fmt.Errorf("graph history needs a dolt backend (current: %s)", s.Backend())
	}
	entries, err := s.Log(ctx, graphLogLimit)
	if err != nil {
		return err
	}
	return printResult(cmd, entries)
}
