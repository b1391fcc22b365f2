package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Emberfield/autodoc/internal/packs"
)

// ConfigFileName is the name of the autodoc configuration file
const ConfigFileName = "config.yaml"

// ConfigDirName is the name of the autodoc state directory
const ConfigDirName = ".autodoc"

// Config holds all autodoc configuration
type Config struct {
	Graph     GraphConfig     `yaml:"graph"`
	LLM       LLMConfig       `yaml:"llm"`
	Builder   BuilderConfig   `yaml:"builder"`
	Features  FeaturesConfig  `yaml:"features"`
	Packs     []packs.Pack    `yaml:"packs,omitempty"`
	PackFile  string          `yaml:"pack_file,omitempty"`
	AutoPacks AutoPacksConfig `yaml:"auto_packs"`
	Log       LogConfig       `yaml:"log"`
}

// GraphConfig selects the graph store backend
type GraphConfig struct {
	Backend      string `yaml:"backend"`
	URI          string `yaml:"uri,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	CommitBuilds bool   `yaml:"commit_builds"`
}

// LLMConfig configures the summarizer used for feature naming
type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key,omitempty"`
	BaseURL        string  `yaml:"base_url,omitempty"`
	Temperature    float32 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Timeout returns the per-call summarizer timeout.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BuilderConfig configures graph construction
type BuilderConfig struct {
	CallDetection string `yaml:"call_detection"`
}

// FeaturesConfig configures feature detection and naming
type FeaturesConfig struct {
	MaxDegree         int      `yaml:"max_degree"`
	IncludeCalls      *bool    `yaml:"include_calls,omitempty"`
	Resolution        float64  `yaml:"resolution"`
	Seed              int64    `yaml:"seed"`
	SampleSize        int      `yaml:"sample_size"`
	MaxNamingCalls    int      `yaml:"max_naming_calls"`
	NamingConcurrency int      `yaml:"naming_concurrency"`
	NamingRPS         float64  `yaml:"naming_rps"`
	Exclude           []string `yaml:"exclude"`
}

// CallsIncluded reports whether CALLS edges add weight to the file projection.
func (c FeaturesConfig) CallsIncluded() bool {
	return c.IncludeCalls == nil || *c.IncludeCalls
}

// AutoPacksConfig configures pack auto-generation
type AutoPacksConfig struct {
	TopN            int  `yaml:"top_n"`
	OverwriteManual bool `yaml:"overwrite_manual"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// ErrConfigNotFound is returned when no config file can be found
var ErrConfigNotFound = errors.New("config file not found")

// ErrInvalidConfig is returned when config validation fails
var ErrInvalidConfig = errors.New("invalid configuration")

// Load reads config from .autodoc/config.yaml, falling back to defaults.
// It searches for the config directory starting from workDir and walking up
// the directory tree. Environment overrides are applied last.
func Load(workDir string) (*Config, error) {
	configDir, err := FindConfigDir(workDir)
	if err != nil {
		cfg := DefaultConfig()
		ApplyEnv(cfg)
		return cfg, nil
	}

	return LoadFromPath(filepath.Join(configDir, ConfigFileName))
}

// LoadFromPath reads config from a specific path.
// Merges loaded config with defaults and validates the result.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			ApplyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	loaded := &Config{}
	if err := yaml.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	merged := Merge(loaded, DefaultConfig())
	ApplyEnv(merged)

	if err := Validate(merged); err != nil {
		return nil, err
	}

	return merged, nil
}

// Environment variables that override file settings.
const (
	EnvGraphURI      = "AUTODOC_GRAPH_URI"
	EnvGraphUsername = "AUTODOC_GRAPH_USERNAME"
	EnvGraphPassword = "AUTODOC_GRAPH_PASSWORD"
	EnvOpenAIKey     = "OPENAI_API_KEY"
)

// ApplyEnv overlays environment variables onto cfg. Secrets are usually
// supplied this way rather than written to config.yaml.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvGraphURI); v != "" {
		cfg.Graph.URI = v
	}
	if v := os.Getenv(EnvGraphUsername); v != "" {
		cfg.Graph.Username = v
	}
	if v := os.Getenv(EnvGraphPassword); v != "" {
		cfg.Graph.Password = v
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv(EnvOpenAIKey)
	}
}

// FindConfigDir locates the .autodoc directory by walking up from startDir.
// Returns the path to the .autodoc directory if found.
func FindConfigDir(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	currentDir := absDir
	for {
		configDir := filepath.Join(currentDir, ConfigDirName)
		info, err := os.Stat(configDir)
		if err == nil && info.IsDir() {
			return configDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", ErrConfigNotFound
		}
		currentDir = parentDir
	}
}

// EnsureConfigDir creates the .autodoc directory if it doesn't exist.
// Returns the path to the .autodoc directory.
func EnsureConfigDir(workDir string) (string, error) {
	absDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	configDir := filepath.Join(absDir, ConfigDirName)

	info, err := os.Stat(configDir)
	if err == nil {
		if info.IsDir() {
			return configDir, nil
		}
		return "", fmt.Errorf("%s exists but is not a directory", configDir)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	return configDir, nil
}

// Validate checks that config values are valid.
func Validate(cfg *Config) error {
	if !contains(ValidBackends, cfg.Graph.Backend) {
		return fmt.Errorf("%w: graph.backend must be one of %v, got %q",
			ErrInvalidConfig, ValidBackends, cfg.Graph.Backend)
	}
	if cfg.Graph.Backend == "dolt-server" && cfg.Graph.URI == "" {
		return fmt.Errorf("%w: graph.uri (host:port) is required for the dolt-server backend", ErrInvalidConfig)
	}

	if !contains(ValidCallDetection, cfg.Builder.CallDetection) {
		return fmt.Errorf("%w: builder.call_detection must be one of %v, got %q",
			ErrInvalidConfig, ValidCallDetection, cfg.Builder.CallDetection)
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("%w: llm.temperature must be between 0 and 2, got %f",
			ErrInvalidConfig, cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens <= 0 {
		return fmt.Errorf("%w: llm.max_tokens must be positive, got %d",
			ErrInvalidConfig, cfg.LLM.MaxTokens)
	}

	f := cfg.Features
	if f.MaxDegree <= 0 {
		return fmt.Errorf("%w: features.max_degree must be positive, got %d", ErrInvalidConfig, f.MaxDegree)
	}
	if f.Resolution <= 0 {
		return fmt.Errorf("%w: features.resolution must be positive, got %f", ErrInvalidConfig, f.Resolution)
	}
	if f.SampleSize <= 0 {
		return fmt.Errorf("%w: features.sample_size must be positive, got %d", ErrInvalidConfig, f.SampleSize)
	}
	if f.MaxNamingCalls < 0 {
		return fmt.Errorf("%w: features.max_naming_calls must be non-negative, got %d", ErrInvalidConfig, f.MaxNamingCalls)
	}
	if f.NamingConcurrency <= 0 {
		return fmt.Errorf("%w: features.naming_concurrency must be positive, got %d", ErrInvalidConfig, f.NamingConcurrency)
	}

	if cfg.AutoPacks.TopN < 0 {
		return fmt.Errorf("%w: auto_packs.top_n must be non-negative, got %d", ErrInvalidConfig, cfg.AutoPacks.TopN)
	}

	seen := make(map[string]struct{}, len(cfg.Packs))
	for _, p := range cfg.Packs {
		if p.Name == "" {
			return fmt.Errorf("%w: pack without a name", ErrInvalidConfig)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate pack name %q", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = struct{}{}
	}

	return nil
}

// SaveDefault writes the default configuration to .autodoc/config.yaml in workDir.
// Creates the .autodoc directory if it doesn't exist.
func SaveDefault(workDir string) (string, error) {
	configDir, err := EnsureConfigDir(workDir)
	if err != nil {
		return "", err
	}

	configPath := filepath.Join(configDir, ConfigFileName)

	if _, err := os.Stat(configPath); err == nil {
		return "", fmt.Errorf("config file already exists: %s", configPath)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	header := "# autodoc configuration\n# Secrets: prefer OPENAI_API_KEY and AUTODOC_GRAPH_PASSWORD over this file.\n\n"
	data = append([]byte(header), data...)

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}

	return configPath, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
