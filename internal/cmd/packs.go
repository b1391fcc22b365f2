package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/packs"
	"github.com/Emberfield/autodoc/internal/store"
)

var packsCmd = &cobra.Command{
	Use:   "packs",
	Short: "Context packs: named file groups with security levels",
	Long: `Context packs group files by gitignore-style patterns.

Packs come from the packs: list in config.yaml and from packs.toml next to
it (or pack_file). A pack may depend on other packs and carries a security
level (none, normal, high, critical) used by impact analysis.

Examples:
  autodoc packs list --tag backend
  autodoc packs show auth
  autodoc packs files auth
  autodoc packs deps api --transitive
  autodoc packs diff auth
  autodoc packs auto --top 5 --write`,
}

var packsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List packs",
	RunE:  runPacksList,
}

var packsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one pack",
	Args:  cobra.ExactArgs(1),
	RunE:  runPacksShow,
}

var packsFilesCmd = &cobra.Command{
	Use:   "files <name>",
	Short: "Resolve a pack's patterns to repository files",
	Args:  cobra.ExactArgs(1),
	RunE:  runPacksFiles,
}

var packsDepsCmd = &cobra.Command{
	Use:   "deps <name>",
	Short: "Show a pack's dependencies and dependents",
	Args:  cobra.ExactArgs(1),
	RunE:  runPacksDeps,
}

var packsDiffCmd = &cobra.Command{
	Use:   "diff <name>",
	Short: "Show files added, removed or modified since the last diff",
	Long: `Compare a pack's files and content hashes with the snapshot recorded by
the previous diff, then record the current state. The first diff of a pack is
a baseline that reports every file as added.`,
	Args: cobra.ExactArgs(1),
	RunE: runPacksDiff,
}

var packsAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Generate packs for the directories densest in code entities",
	RunE:  runPacksAuto,
}

var (
	packsTag             string
	packsSecurity        string
	packsTransitive      bool
	packsAutoTop         int
	packsAutoWrite       bool
	packsOverwriteManual bool
)

func init() {
	rootCmd.AddCommand(packsCmd)
	packsCmd.AddCommand(packsListCmd, packsShowCmd, packsFilesCmd, packsDepsCmd, packsDiffCmd, packsAutoCmd)

	packsListCmd.Flags().StringVar(&packsTag, "tag", "", "Only packs with this tag")
	packsListCmd.Flags().StringVar(&packsSecurity, "security", "", "Only packs with this security level")
	packsDepsCmd.Flags().BoolVar(&packsTransitive, "transitive", false, "Follow dependencies transitively")
	packsAutoCmd.Flags().IntVar(&packsAutoTop, "top", 0, "Number of directories (default from config)")
	packsAutoCmd.Flags().BoolVar(&packsAutoWrite, "write", false, "Merge generated packs into packs.toml")
	packsAutoCmd.Flags().BoolVar(&packsOverwriteManual, "overwrite-manual", false, "Let generated packs replace hand-written packs of the same name")
}

type packsListing struct {
	Packs    []*packs.Pack `json:"packs" yaml:"packs"`
	Total    int           `json:"total" yaml:"total"`
	Warnings []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func runPacksList(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	reg, err := ws.registry()
	if err != nil {
		return err
	}

	level := packs.SecurityLevel(packsSecurity)
	if level != "" && !level.Valid() {
		return fmt.Errorf("invalid security level %q (expected none, normal, high or critical)", packsSecurity)
	}

	list := reg.List(packs.ListFilter{Tag: packsTag, SecurityLevel: level})
	if list == nil {
		list = []*packs.Pack{}
	}
	return printResult(cmd, packsListing{Packs: list, Total: len(list), Warnings: reg.Warnings()})
}

func lookupPack(reg *packs.Registry, name string) (*packs.Pack, error) {
	p, ok := reg.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", packs.ErrPackNotFound, name, reg.Names())
	}
	return p, nil
}

func runPacksShow(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	reg, err := ws.registry()
	if err != nil {
		return err
	}
	p, err := lookupPack(reg, args[0])
	if err != nil {
		return err
	}
	return printResult(cmd, p)
}

type packFiles struct {
	Pack      string   `json:"pack" yaml:"pack"`
	Patterns  []string `json:"patterns" yaml:"patterns"`
	Files     []string `json:"resolved_files" yaml:"resolved_files"`
	FileCount int      `json:"file_count" yaml:"file_count"`
}

func runPacksFiles(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	reg, err := ws.registry()
	if err != nil {
		return err
	}
	p, err := lookupPack(reg, args[0])
	if err != nil {
		return err
	}

	candidates, err := ws.fileSource().List(cmdContext(cmd))
	if err != nil {
		return err
	}
	files, err := reg.Files(p.Name, candidates)
	if err != nil {
		return err
	}
	if files == nil {
		files = []string{}
	}
	return printResult(cmd, packFiles{Pack: p.Name, Patterns: p.FilePatterns, Files: files, FileCount: len(files)})
}

type packDeps struct {
	packs.Resolution `yaml:",inline"`
	Dependents       []string `json:"dependents" yaml:"dependents"`
}

func runPacksDeps(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	reg, err := ws.registry()
	if err != nil {
		return err
	}
	res, err := reg.Deps(args[0], packsTransitive)
	if err != nil {
		return err
	}
	dependents := reg.Dependents(args[0])
	if dependents == nil {
		dependents = []string{}
	}
	return printResult(cmd, packDeps{Resolution: *res, Dependents: dependents})
}

func runPacksDiff(cmd *cobra.Command, args []string) error {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	reg, err := ws.registry()
	if err != nil {
		return err
	}
	if _, err := lookupPack(reg, args[0]); err != nil {
		return err
	}

	snaps, err := ws.openCache()
	if err != nil {
		return err
	}
	defer snaps.Close()

	res, err := reg.Diff(cmdContext(cmd), args[0], ws.fileSource(), snaps)
	if err != nil {
		return err
	}
	return printResult(cmd, res)
}

type autoPacksReport struct {
	Generated []packs.Pack       `json:"generated" yaml:"generated"`
	Merge     *packs.MergeResult `json:"merge,omitempty" yaml:"merge,omitempty"`
	Densities []packs.DirDensity `json:"densities" yaml:"densities"`
	Written   string             `json:"written,omitempty" yaml:"written,omitempty"`
}

func runPacksAuto(cmd *cobra.Command, args []string) error {
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

	nodes, err := s.Nodes(ctx, store.NodeFilter{})
	if err != nil {
		return err
	}
	var entityFiles []string
	for _, n := range nodes {
		if n.Kind != store.KindFile {
			entityFiles = append(entityFiles, n.FilePath)
		}
	}

	top := packsAutoTop
	if top <= 0 {
		top = ws.cfg.AutoPacks.TopN
	}
	generated := packs.AutoGenerate(entityFiles, top)
	report := autoPacksReport{Generated: generated, Densities: packs.Densities(entityFiles)}
	if len(report.Densities) > top && top > 0 {
		report.Densities = report.Densities[:top]
	}

	if !packsAutoWrite {
		return printResult(cmd, report)
	}

	fromConfig, fromFile, err := ws.packDeclarations()
	if err != nil {
		return err
	}
	// The file's packs are rewritten; config packs only take part in the
	// name-collision check.
	reg := packs.NewRegistry(append(append([]packs.Pack(nil), fromConfig...), fromFile...), ws.logger)
	merge := reg.Merge(generated, packsOverwriteManual || ws.cfg.AutoPacks.OverwriteManual)
	report.Merge = &merge

	inConfig := make(map[string]bool, len(fromConfig))
	for _, p := range fromConfig {
		inConfig[p.Name] = true
	}
	var keep []packs.Pack
	for _, p := range reg.Packs() {
		if !inConfig[p.Name] || p.AutoGenerated {
			keep = append(keep, p)
		}
	}

	path := ws.packFile()
	if err := packs.WritePacksFile(path, keep); err != nil {
		return err
	}
	report.Written = path
	return printResult(cmd, report)
}
