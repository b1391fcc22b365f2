package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Emberfield/autodoc/internal/mcp"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start MCP server for AI agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

AI agents query context packs, features, impact and the code graph through
MCP tools instead of spawning CLI commands.

Examples:
  autodoc serve                               # Default tools
  autodoc serve --tools all                   # Every tool
  autodoc serve --tools pack_list,impact      # Specific tools only
  autodoc serve --timeout 30m                 # Exit after 30 minutes idle
  autodoc serve --list-tools                  # Show available tools`,
	RunE: runServe,
}

var (
	serveTools     string
	serveTimeout   time.Duration
	serveListTools bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveTools, "tools", "", "Comma-separated tools to expose, or 'all' (default: "+strings.Join(mcp.DefaultTools, ",")+")")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 30*time.Minute, "Inactivity timeout (0 for no timeout)")
	serveCmd.Flags().BoolVar(&serveListTools, "list-tools", false, "List available tools")
}

func parseTools(s string) []string {
	if strings.TrimSpace(s) == "all" {
		return mcp.AllTools
	}
	var tools []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tools = append(tools, t)
		}
	}
	return tools
}

func runServe(cmd *cobra.Command, args []string) error {
	tools := parseTools(serveTools)

	ws, err := loadWorkspace(cmd)
	if err != nil {
		return err
	}
	reg, err := ws.registry()
	if err != nil {
		return err
	}

	// A missing graph only disables the graph tools.
	deps := mcp.Deps{
		Registry: reg,
		Features: ws.artifact(),
		Source:   ws.fileSource(),
		Logger:   ws.logger,
	}
	if s, err := ws.openStore(cmdContext(cmd)); err == nil {
		deps.Store = s
	} else {
		ws.logger.Warn("graph store unavailable, graph tools disabled", "error", err)
	}

	srv, err := mcp.New(mcp.Config{Tools: tools, Timeout: serveTimeout, Version: Version}, deps)
	if err != nil {
		if deps.Store != nil {
			deps.Store.Close()
		}
		return err
	}
	defer srv.Close()

	if serveListTools {
		return printResult(cmd, srv.GetToolSchemas())
	}

	ws.logger.Info("starting MCP server", "tools", srv.ListTools(), "timeout", serveTimeout)
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
