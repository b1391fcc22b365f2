package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .autodoc directory, config and graph store",
	Long: `Initialize the .autodoc directory in the current directory.

Writes a default config.yaml (unless one exists) and creates the graph store
schema for the configured backend.

Examples:
  autodoc init          # Initialize in current directory
  autodoc init --force  # Rewrite config.yaml with defaults`,
	RunE: runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config.yaml with defaults")
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	stateDir, err := config.EnsureConfigDir(cwd)
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(stateDir, config.ConfigFileName)

	_, err = os.Stat(cfgPath)
	switch {
	case err == nil && !initForce:
		fmt.Fprintf(cmd.OutOrStdout(), "Already initialized at %s\n", config.ConfigDirName)
		return nil
	case err == nil:
		if err := os.Remove(cfgPath); err != nil {
			return fmt.Errorf("removing existing config: %w", err)
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("checking config path: %w", err)
	}

	if _, err := config.SaveDefault(cwd); err != nil {
		return err
	}

	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	s, err := ws.openStore(cmdContext(cmd))
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized autodoc at %s (graph backend: %s)\n", config.ConfigDirName, s.Backend())
	return nil
}
