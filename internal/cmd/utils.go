package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/cache"
	"github.com/Emberfield/autodoc/internal/config"
	"github.com/Emberfield/autodoc/internal/features"
	"github.com/Emberfield/autodoc/internal/logging"
	"github.com/Emberfield/autodoc/internal/output"
	"github.com/Emberfield/autodoc/internal/packs"
	"github.com/Emberfield/autodoc/internal/store"
	"github.com/Emberfield/autodoc/internal/summarizer"
)

// Default file names inside the .autodoc state directory.
const (
	graphDBName = "graph.db"
	doltDirName = "dolt"
)

// workspace is the resolved project: its root, state directory, config and
// logger. Every command starts from one.
type workspace struct {
	root     string
	stateDir string
	cfg      *config.Config
	logger   *slog.Logger
}

// loadWorkspace resolves the project from --config or by walking up from the
// working directory. Without a .autodoc directory the working directory is
// the root and defaults apply.
func loadWorkspace(cmd *cobra.Command) (*workspace, error) {
	ws := &workspace{}

	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		cfg, err := config.LoadFromPath(abs)
		if err != nil {
			return nil, err
		}
		ws.cfg = cfg
		ws.stateDir = filepath.Dir(abs)
		ws.root = filepath.Dir(ws.stateDir)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		cfg, err := config.Load(cwd)
		if err != nil {
			return nil, err
		}
		ws.cfg = cfg
		if dir, err := config.FindConfigDir(cwd); err == nil {
			ws.stateDir = dir
			ws.root = filepath.Dir(dir)
		} else {
			ws.stateDir = filepath.Join(cwd, config.ConfigDirName)
			ws.root = cwd
		}
	}

	level := logging.LevelFromString(ws.cfg.Log.Level)
	if verbose > 0 || quiet {
		level = logging.LevelFromVerbosity(verbose, quiet)
	}
	ws.logger = logging.New(cmd.ErrOrStderr(), level)
	return ws, nil
}

// storeConfig maps the graph section onto a store config. Local backends
// default to paths inside the state directory.
func (ws *workspace) storeConfig() store.Config {
	g := ws.cfg.Graph
	cfg := store.Config{Backend: g.Backend, URI: g.URI, Username: g.Username, Password: g.Password}
	if cfg.URI == "" {
		switch g.Backend {
		case store.BackendSQLite, "":
			cfg.URI = filepath.Join(ws.stateDir, graphDBName)
		case store.BackendDolt:
			cfg.URI = filepath.Join(ws.stateDir, doltDirName)
		}
	}
	return cfg
}

func (ws *workspace) openStore(ctx context.Context) (*store.Store, error) {
	s, err := store.Open(ctx, ws.storeConfig())
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	return s, nil
}

func (ws *workspace) openCache() (*cache.Cache, error) {
	return cache.Open(ws.stateDir)
}

func (ws *workspace) artifact() *features.Artifact {
	return features.NewArtifact(ws.stateDir, ws.logger)
}

// packFile is the packs.toml path: pack_file from the config, resolved
// against the root, or packs.toml in the state directory.
func (ws *workspace) packFile() string {
	if p := ws.cfg.PackFile; p != "" {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(ws.root, p)
	}
	return filepath.Join(ws.stateDir, packs.PacksDeclarationFile)
}

// packDeclarations returns the config packs followed by the packs.toml packs.
func (ws *workspace) packDeclarations() (fromConfig, fromFile []packs.Pack, err error) {
	fromFile, err = packs.LoadPacksFile(ws.packFile())
	if err != nil {
		return nil, nil, err
	}
	return ws.cfg.Packs, fromFile, nil
}

func (ws *workspace) registry() (*packs.Registry, error) {
	fromConfig, fromFile, err := ws.packDeclarations()
	if err != nil {
		return nil, err
	}
	all := append(append([]packs.Pack(nil), fromConfig...), fromFile...)
	return packs.NewRegistry(all, ws.logger), nil
}

func (ws *workspace) fileSource() *packs.AFSSource {
	return packs.NewAFSSource(ws.root, ws.cfg.Features.Exclude)
}

// newSummarizer builds the rate-limited, retrying summarizer from the llm
// section. It returns summarizer.ErrNotConfigured when no key is available.
func (ws *workspace) newSummarizer() (summarizer.Summarizer, error) {
	llm := ws.cfg.LLM
	client, err := summarizer.NewOpenAI(summarizer.Config{
		Provider:    llm.Provider,
		Model:       llm.Model,
		APIKey:      llm.APIKey,
		BaseURL:     llm.BaseURL,
		Temperature: llm.Temperature,
		MaxTokens:   llm.MaxTokens,
		Logger:      ws.logger,
	})
	if err != nil {
		return nil, err
	}
	return summarizer.NewResilient(client, summarizer.Options{
		Timeout: llm.Timeout(),
		RPS:     ws.cfg.Features.NamingRPS,
		Logger:  ws.logger,
	}), nil
}

// printResult renders v in the --format output format.
func printResult(cmd *cobra.Command, v interface{}) error {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return err
	}
	return output.Write(cmd.OutOrStdout(), format, v)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// loadFeatures reads the features artifact with a hint when it is missing.
func (ws *workspace) loadFeatures() (*features.Result, error) {
	res, err := ws.artifact().Load()
	if errors.Is(err, features.ErrNoFeatures) {
		return nil, fmt.Errorf("%w: run 'autodoc features detect' first", err)
	}
	return res, err
}
