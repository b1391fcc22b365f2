// Package mcp provides an MCP (Model Context Protocol) server for autodoc.
// AI agents use it to browse context packs, features and the code graph
// through MCP tools instead of CLI commands.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Emberfield/autodoc/internal/features"
	"github.com/Emberfield/autodoc/internal/impact"
	"github.com/Emberfield/autodoc/internal/logging"
	"github.com/Emberfield/autodoc/internal/packs"
	"github.com/Emberfield/autodoc/internal/query"
	"github.com/Emberfield/autodoc/internal/store"
)

// Server wraps the MCP server with autodoc-specific functionality
type Server struct {
	mcpServer    *server.MCPServer
	store        store.Graph
	engine       *query.Engine
	registry     *packs.Registry
	features     *features.Artifact
	source       packs.FileSource
	logger       *slog.Logger
	tools        map[string]bool
	lastActivity time.Time
	timeout      time.Duration
	mu           sync.RWMutex
}

// Config holds server configuration
type Config struct {
	Tools   []string      // Which tools to expose (empty = defaults)
	Timeout time.Duration // Inactivity timeout (0 = no timeout)
	Version string
}

// Deps are the data sources the tools read. Any of them may be nil; tools
// needing a missing source return an error instead of failing registration.
type Deps struct {
	Store    store.Graph
	Registry *packs.Registry
	Features *features.Artifact
	// Source lists repository files for pack_files. The graph's file nodes
	// are used when nil.
	Source packs.FileSource
	Logger *slog.Logger
}

// DefaultTools is the default set of tools to expose
var DefaultTools = []string{"pack_list", "pack_info", "pack_files", "pack_entities", "impact", "features_list"}

// AllTools lists all available tools
var AllTools = []string{
	"pack_list", "pack_info", "pack_files", "pack_entities", "pack_deps",
	"impact", "features_list", "feature_files",
	"query_deps", "query_entry_points", "query_coverage", "query_patterns", "query_complexity",
}

// New creates a new MCP server
func New(cfg Config, deps Deps) (*Server, error) {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		mcpServer:    server.NewMCPServer("autodoc", version, server.WithToolCapabilities(false)),
		store:        deps.Store,
		registry:     deps.Registry,
		features:     deps.Features,
		source:       deps.Source,
		logger:       logging.OrDiscard(deps.Logger),
		tools:        make(map[string]bool),
		lastActivity: time.Now(),
		timeout:      cfg.Timeout,
	}
	if deps.Store != nil {
		s.engine = query.New(deps.Store, deps.Logger)
	}

	toolsToRegister := cfg.Tools
	if len(toolsToRegister) == 0 {
		toolsToRegister = DefaultTools
	}
	for _, toolName := range toolsToRegister {
		if err := s.registerTool(toolName); err != nil {
			return nil, fmt.Errorf("failed to register tool %s: %w", toolName, err)
		}
		s.tools[toolName] = true
	}
	return s, nil
}

// registerTool registers a single tool with the MCP server. The MCP
// definition is derived from the schema registry so both stay in sync.
func (s *Server) registerTool(name string) error {
	schema, ok := toolSchemaRegistry[name]
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	s.mcpServer.AddTool(newTool(schema), s.handler(name))
	return nil
}

func newTool(schema ToolSchema) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(schema.Description)}
	for _, p := range schema.Parameters {
		popts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			popts = append(popts, mcp.Required())
		}
		switch p.Type {
		case "boolean":
			opts = append(opts, mcp.WithBoolean(p.Name, popts...))
		case "number":
			opts = append(opts, mcp.WithNumber(p.Name, popts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, popts...))
		}
	}
	return mcp.NewTool(schema.Name, opts...)
}

func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		s.updateActivity()

		result, err := s.CallTool(ctx, name, req.GetArguments())
		if err != nil {
			s.logger.Debug("tool call failed", "tool", name, "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(result), nil
	}
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	if s.timeout > 0 {
		go s.timeoutChecker()
	}
	return server.ServeStdio(s.mcpServer)
}

// timeoutChecker monitors for inactivity and exits if timeout exceeded
func (s *Server) timeoutChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.RLock()
		elapsed := time.Since(s.lastActivity)
		s.mu.RUnlock()

		if elapsed > s.timeout {
			s.logger.Info("mcp server idle, exiting", "timeout", s.timeout)
			os.Exit(0)
		}
	}
}

func (s *Server) updateActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Close closes the server and its resources
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// ListTools returns the registered tool names, sorted
func (s *Server) ListTools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := make([]string, 0, len(s.tools))
	for t := range s.tools {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	return tools
}

// ToolSchema describes a tool's name, description, and parameters.
type ToolSchema struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Parameters  []ParameterSchema `json:"parameters" yaml:"parameters"`
}

// ParameterSchema describes a single tool parameter.
type ParameterSchema struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Required    bool   `json:"required" yaml:"required"`
}

// toolSchemaRegistry holds the schema definitions for all tools.
var toolSchemaRegistry = map[string]ToolSchema{
	"pack_list": {
		Name:        "pack_list",
		Description: "List the configured context packs, optionally filtered by tag or security level.",
		Parameters: []ParameterSchema{
			{Name: "tag", Type: "string", Description: "Only packs carrying this tag"},
			{Name: "security", Type: "string", Description: "Only packs with this security level: none, normal, high, critical"},
		},
	},
	"pack_info": {
		Name:        "pack_info",
		Description: "Show one context pack: patterns, dependencies, security level and tags.",
		Parameters: []ParameterSchema{
			{Name: "name", Type: "string", Description: "Pack name", Required: true},
			{Name: "include_dependencies", Type: "boolean", Description: "Include the transitive dependency chain"},
		},
	},
	"pack_files": {
		Name:        "pack_files",
		Description: "Resolve a context pack's patterns to the repository files it contains.",
		Parameters: []ParameterSchema{
			{Name: "name", Type: "string", Description: "Pack name", Required: true},
		},
	},
	"pack_entities": {
		Name:        "pack_entities",
		Description: "List the code entities (functions, classes, methods) defined in a context pack's files.",
		Parameters: []ParameterSchema{
			{Name: "name", Type: "string", Description: "Pack name", Required: true},
			{Name: "entity_type", Type: "string", Description: "Filter by kind: Function, Class, Method"},
			{Name: "limit", Type: "number", Description: "Maximum results (default: 50)"},
		},
	},
	"pack_deps": {
		Name:        "pack_deps",
		Description: "Show the packs a context pack depends on and the packs depending on it.",
		Parameters: []ParameterSchema{
			{Name: "name", Type: "string", Description: "Pack name", Required: true},
			{Name: "transitive", Type: "boolean", Description: "Follow dependencies transitively"},
		},
	},
	"impact": {
		Name:        "impact",
		Description: "Analyze which context packs and features a set of changed files affects, with security implications.",
		Parameters: []ParameterSchema{
			{Name: "files", Type: "string", Description: "Changed file paths, separated by commas or whitespace", Required: true},
		},
	},
	"features_list": {
		Name:        "features_list",
		Description: "List the detected features (clusters of related files) with names and sample files.",
		Parameters: []ParameterSchema{
			{Name: "named_only", Type: "boolean", Description: "Only features that have been named"},
		},
	},
	"feature_files": {
		Name:        "feature_files",
		Description: "List every file of one detected feature.",
		Parameters: []ParameterSchema{
			{Name: "id", Type: "number", Description: "Feature ID", Required: true},
		},
	},
	"query_deps": {
		Name:        "query_deps",
		Description: "Show what a file or entity imports and what imports it.",
		Parameters: []ParameterSchema{
			{Name: "target", Type: "string", Description: "Node ID, file path or entity name", Required: true},
			{Name: "transitive", Type: "boolean", Description: "Follow imports transitively in both directions"},
		},
	},
	"query_entry_points": {
		Name:        "query_entry_points",
		Description: "Find entry points: route handlers, CLI commands, main functions and other uncalled roots.",
	},
	"query_coverage": {
		Name:        "query_coverage",
		Description: "Estimate test coverage by matching test entities to the functions they exercise.",
	},
	"query_patterns": {
		Name:        "query_patterns",
		Description: "Detect code patterns: singletons, factories, API endpoints and test suites.",
	},
	"query_complexity": {
		Name:        "query_complexity",
		Description: "Rank files by structural complexity.",
		Parameters: []ParameterSchema{
			{Name: "limit", Type: "number", Description: "Maximum results (default: 20)"},
		},
	},
}

// GetToolSchemas returns the schemas of the registered tools, sorted by name.
func (s *Server) GetToolSchemas() []ToolSchema {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schemas := make([]ToolSchema, 0, len(s.tools))
	for name := range s.tools {
		if schema, ok := toolSchemaRegistry[name]; ok {
			schemas = append(schemas, schema)
		}
	}
	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// CallTool dispatches a tool call by name with the given arguments.
// Returns the JSON result string or an error.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	s.mu.RLock()
	registered := s.tools[name]
	s.mu.RUnlock()

	if !registered {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	switch name {
	case "pack_list":
		tag, _ := args["tag"].(string)
		security, _ := args["security"].(string)
		return s.executePackList(tag, security)

	case "pack_info":
		pack, _ := args["name"].(string)
		if pack == "" {
			return "", fmt.Errorf("name parameter is required")
		}
		withDeps, _ := args["include_dependencies"].(bool)
		return s.executePackInfo(pack, withDeps)

	case "pack_files":
		pack, _ := args["name"].(string)
		if pack == "" {
			return "", fmt.Errorf("name parameter is required")
		}
		return s.executePackFiles(ctx, pack)

	case "pack_entities":
		pack, _ := args["name"].(string)
		if pack == "" {
			return "", fmt.Errorf("name parameter is required")
		}
		kind, _ := args["entity_type"].(string)
		return s.executePackEntities(ctx, pack, kind, intArg(args, "limit", 50))

	case "pack_deps":
		pack, _ := args["name"].(string)
		if pack == "" {
			return "", fmt.Errorf("name parameter is required")
		}
		transitive, _ := args["transitive"].(bool)
		return s.executePackDeps(pack, transitive)

	case "impact":
		files, _ := args["files"].(string)
		changed := splitFiles(files)
		if len(changed) == 0 {
			return "", fmt.Errorf("files parameter is required")
		}
		return s.executeImpact(changed)

	case "features_list":
		namedOnly, _ := args["named_only"].(bool)
		return s.executeFeaturesList(namedOnly)

	case "feature_files":
		id, ok := args["id"].(float64)
		if !ok {
			return "", fmt.Errorf("id parameter is required")
		}
		return s.executeFeatureFiles(int(id))

	case "query_deps":
		target, _ := args["target"].(string)
		if target == "" {
			return "", fmt.Errorf("target parameter is required")
		}
		transitive, _ := args["transitive"].(bool)
		return s.executeQuery(func(e *query.Engine) (any, error) {
			return e.Dependencies(ctx, target, transitive)
		})

	case "query_entry_points":
		return s.executeQuery(func(e *query.Engine) (any, error) {
			return e.EntryPoints(ctx)
		})

	case "query_coverage":
		return s.executeQuery(func(e *query.Engine) (any, error) {
			return e.TestCoverage(ctx)
		})

	case "query_patterns":
		return s.executeQuery(func(e *query.Engine) (any, error) {
			return e.CodePatterns(ctx)
		})

	case "query_complexity":
		limit := intArg(args, "limit", 20)
		return s.executeQuery(func(e *query.Engine) (any, error) {
			stats, err := e.ModuleComplexity(ctx)
			if err != nil {
				return nil, err
			}
			if limit > 0 && len(stats) > limit {
				stats = stats[:limit]
			}
			return stats, nil
		})

	default:
		return "", fmt.Errorf("unknown tool: %s", name)
	}
}

type packSummary struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name"`
	Description   string   `json:"description,omitempty"`
	FilesCount    int      `json:"files_count"`
	Dependencies  []string `json:"dependencies"`
	SecurityLevel string   `json:"security_level"`
	Tags          []string `json:"tags"`
}

func (s *Server) requireRegistry() error {
	if s.registry == nil || s.registry.Len() == 0 {
		return fmt.Errorf("no context packs configured: add packs to the config or run 'autodoc packs auto'")
	}
	return nil
}

func (s *Server) lookupPack(name string) (*packs.Pack, error) {
	if err := s.requireRegistry(); err != nil {
		return nil, err
	}
	p, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("pack not found: %s (available: %s)", name, strings.Join(s.registry.Names(), ", "))
	}
	return p, nil
}

func (s *Server) executePackList(tag, security string) (string, error) {
	if err := s.requireRegistry(); err != nil {
		return "", err
	}

	list := s.registry.List(packs.ListFilter{Tag: tag, SecurityLevel: packs.SecurityLevel(security)})
	out := make([]packSummary, 0, len(list))
	for _, p := range list {
		out = append(out, packSummary{
			Name:          p.Name,
			DisplayName:   p.Label(),
			Description:   p.Description,
			FilesCount:    len(p.FilePatterns),
			Dependencies:  nonNil(p.Dependencies),
			SecurityLevel: string(p.SecurityLevel),
			Tags:          nonNil(p.Tags),
		})
	}

	return toJSON(map[string]interface{}{
		"packs": out,
		"total": len(out),
	})
}

func (s *Server) executePackInfo(name string, withDeps bool) (string, error) {
	p, err := s.lookupPack(name)
	if err != nil {
		return "", err
	}

	out := map[string]interface{}{
		"name":           p.Name,
		"display_name":   p.Label(),
		"description":    p.Description,
		"files":          nonNil(p.FilePatterns),
		"dependencies":   nonNil(p.Dependencies),
		"security_level": string(p.SecurityLevel),
		"tags":           nonNil(p.Tags),
		"auto_generated": p.AutoGenerated,
	}
	if withDeps {
		res, err := s.registry.Deps(name, true)
		if err != nil {
			return "", err
		}
		out["dependency_chain"] = res.Dependencies
		if len(res.Warnings) > 0 {
			out["warnings"] = res.Warnings
		}
	}
	return toJSON(out)
}

// candidateFiles lists the repository files packs are resolved against.
func (s *Server) candidateFiles(ctx context.Context) ([]string, error) {
	if s.source != nil {
		return s.source.List(ctx)
	}
	if s.store == nil {
		return nil, fmt.Errorf("no file source: run 'autodoc graph build' first")
	}
	nodes, err := s.store.Nodes(ctx, store.NodeFilter{Kind: store.KindFile})
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(nodes))
	for _, n := range nodes {
		files = append(files, n.FilePath)
	}
	return files, nil
}

func (s *Server) executePackFiles(ctx context.Context, name string) (string, error) {
	p, err := s.lookupPack(name)
	if err != nil {
		return "", err
	}
	candidates, err := s.candidateFiles(ctx)
	if err != nil {
		return "", err
	}
	files, err := s.registry.Files(name, candidates)
	if err != nil {
		return "", err
	}

	return toJSON(map[string]interface{}{
		"pack":           name,
		"patterns":       nonNil(p.FilePatterns),
		"resolved_files": nonNil(files),
		"file_count":     len(files),
	})
}

type entityRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	FilePath string `json:"file_path"`
	Line     int    `json:"line,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

func (s *Server) executePackEntities(ctx context.Context, name, kind string, limit int) (string, error) {
	if _, err := s.lookupPack(name); err != nil {
		return "", err
	}
	if s.store == nil {
		return "", fmt.Errorf("code graph not available: run 'autodoc graph build' first")
	}

	nodes, err := s.store.Nodes(ctx, store.NodeFilter{Kind: kind})
	if err != nil {
		return "", err
	}

	entities := []entityRef{}
	total := 0
	for _, n := range nodes {
		if n.Kind == store.KindFile || !s.registry.Matches(name, n.FilePath) {
			continue
		}
		total++
		if limit > 0 && len(entities) >= limit {
			continue
		}
		entities = append(entities, entityRef{
			ID:       n.ID,
			Name:     n.Name,
			Kind:     n.Kind,
			FilePath: n.FilePath,
			Line:     n.LineStart,
			Summary:  n.Summary,
		})
	}

	return toJSON(map[string]interface{}{
		"pack":      name,
		"entities":  entities,
		"total":     total,
		"truncated": total > len(entities),
	})
}

func (s *Server) executePackDeps(name string, transitive bool) (string, error) {
	if _, err := s.lookupPack(name); err != nil {
		return "", err
	}
	res, err := s.registry.Deps(name, transitive)
	if err != nil {
		return "", err
	}

	out := map[string]interface{}{
		"pack":         name,
		"transitive":   transitive,
		"dependencies": res.Dependencies,
		"dependents":   nonNil(s.registry.Dependents(name)),
	}
	if len(res.Warnings) > 0 {
		out["warnings"] = res.Warnings
	}
	return toJSON(out)
}

func (s *Server) executeImpact(changed []string) (string, error) {
	var res *features.Result
	if s.features != nil {
		loaded, err := s.features.Load()
		switch {
		case err == nil:
			res = loaded
		case errors.Is(err, features.ErrNoFeatures):
		default:
			s.logger.Warn("could not load features for impact analysis", "error", err)
		}
	}
	return toJSON(impact.AnalyzeWithFeatures(changed, s.registry, res))
}

type featureSummary struct {
	ID          int                   `json:"id"`
	Name        string                `json:"name"`
	Named       bool                  `json:"named"`
	FileCount   int                   `json:"file_count"`
	SampleFiles []features.SampleFile `json:"sample_files"`
	Reasoning   string                `json:"reasoning,omitempty"`
}

func (s *Server) loadFeatures() (*features.Result, error) {
	if s.features == nil {
		return nil, features.ErrNoFeatures
	}
	res, err := s.features.Load()
	if errors.Is(err, features.ErrNoFeatures) {
		return nil, fmt.Errorf("%w: run 'autodoc features detect' first", err)
	}
	return res, err
}

func (s *Server) executeFeaturesList(namedOnly bool) (string, error) {
	res, err := s.loadFeatures()
	if err != nil {
		return "", err
	}

	out := []featureSummary{}
	for _, f := range res.List() {
		if namedOnly && !f.Named() {
			continue
		}
		out = append(out, featureSummary{
			ID:          f.ID,
			Name:        f.Label(),
			Named:       f.Named(),
			FileCount:   f.FileCount,
			SampleFiles: f.SampleFiles,
			Reasoning:   f.Reasoning,
		})
	}

	return toJSON(map[string]interface{}{
		"features":    out,
		"total":       len(out),
		"modularity":  res.Modularity,
		"detected_at": res.DetectedAt,
	})
}

func (s *Server) executeFeatureFiles(id int) (string, error) {
	res, err := s.loadFeatures()
	if err != nil {
		return "", err
	}
	f, err := res.Get(id)
	if err != nil {
		return "", err
	}
	return toJSON(map[string]interface{}{
		"id":         f.ID,
		"name":       f.Label(),
		"files":      nonNil(f.Files),
		"file_count": f.FileCount,
	})
}

func (s *Server) executeQuery(run func(*query.Engine) (any, error)) (string, error) {
	if s.engine == nil {
		return "", fmt.Errorf("code graph not available: run 'autodoc graph build' first")
	}
	v, err := run(s.engine)
	if err != nil {
		return "", err
	}
	return toJSON(v)
}

// Helper functions

func toJSON(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func intArg(args map[string]interface{}, key string, def int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return def
}

func splitFiles(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
