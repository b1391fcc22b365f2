package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/features"
	"github.com/Emberfield/autodoc/internal/impact"
)

var impactCmd = &cobra.Command{
	Use:   "impact [files...]",
	Short: "Show which packs and features a change affects",
	Long: `Analyze the impact of changed files.

A pack is affected when a changed file matches its patterns (direct) or when
it depends, directly or transitively, on an affected pack. Critical and high
security packs are called out. When features have been detected, the
features containing a changed file are listed too.

Files are read from the arguments, or from stdin one per line with --stdin.

Examples:
  autodoc impact src/auth/login.py
  git diff --name-only main | autodoc impact --stdin
  autodoc impact src/auth/login.py --no-features --format json`,
	RunE: runImpact,
}

var (
	impactStdin      bool
	impactNoFeatures bool
)

func init() {
	rootCmd.AddCommand(impactCmd)
	impactCmd.Flags().BoolVar(&impactStdin, "stdin", false, "Read changed files from stdin, one per line")
	impactCmd.Flags().BoolVar(&impactNoFeatures, "no-features", false, "Skip the affected features section")
}

func runImpact(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}

	changed := append([]string(nil), args...)
	if impactStdin {
		lines, err := readLines(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read changed files: %w", err)
		}
		changed = append(changed, lines...)
	}

	reg, err := ws.registry()
	if err != nil {
		return err
	}

	var res *features.Result
	if !impactNoFeatures {
		res, err = ws.artifact().Load()
		if errors.Is(err, features.ErrNoFeatures) {
			res, err = nil, nil
		}
		if err != nil {
			ws.logger.Warn("ignoring unreadable features cache", "error", err)
			res = nil
		}
	}

	return printResult(cmd, impact.AnalyzeWithFeatures(changed, reg, res))
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
