package config

// ValidBackends lists the graph store backends
var ValidBackends = []string{"sqlite", "dolt", "dolt-server"}

// ValidCallDetection lists the CALLS edge strategies
var ValidCallDetection = []string{"name", "syntax", "none"}

// DefaultExclude lists path patterns kept out of feature clustering:
// dependency trees, virtualenvs, caches and build output.
var DefaultExclude = []string{
	"node_modules/",
	"site-packages/",
	".venv/",
	"venv/",
	"__pycache__/",
	".git/",
	"dist/",
	"build/",
	".tox/",
	".eggs/",
	"coverage/",
	".next/",
	".nuxt/",
	".output/",
	"vendor/",
	"third_party/",
	"external_libs/",
}

// DefaultConfig returns configuration with sensible defaults.
// These defaults are used when no config file exists or when
// config file is missing specific fields.
func DefaultConfig() *Config {
	return &Config{
		Graph: GraphConfig{
			Backend: "sqlite",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			Temperature:    0.3,
			MaxTokens:      500,
			TimeoutSeconds: 30,
		},
		Builder: BuilderConfig{
			CallDetection: "name",
		},
		Features: FeaturesConfig{
			MaxDegree:         50,
			Resolution:        1.0,
			Seed:              42,
			SampleSize:        5,
			MaxNamingCalls:    25,
			NamingConcurrency: 4,
			NamingRPS:         2,
			Exclude:           append([]string(nil), DefaultExclude...),
		},
		AutoPacks: AutoPacksConfig{
			TopN: 10,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Merge merges loaded config with defaults.
// Values from loaded config take precedence over defaults.
// Returns a new Config with merged values.
func Merge(loaded, defaults *Config) *Config {
	result := &Config{
		Graph:     mergeGraphConfig(loaded.Graph, defaults.Graph),
		LLM:       mergeLLMConfig(loaded.LLM, defaults.LLM),
		Builder:   mergeBuilderConfig(loaded.Builder, defaults.Builder),
		Features:  mergeFeaturesConfig(loaded.Features, defaults.Features),
		Packs:     loaded.Packs,
		PackFile:  loaded.PackFile,
		AutoPacks: mergeAutoPacksConfig(loaded.AutoPacks, defaults.AutoPacks),
		Log:       loaded.Log,
	}
	if result.Log.Level == "" {
		result.Log.Level = defaults.Log.Level
	}
	return result
}

func mergeGraphConfig(loaded, defaults GraphConfig) GraphConfig {
	result := loaded
	if result.Backend == "" {
		result.Backend = defaults.Backend
	}
	return result
}

func mergeLLMConfig(loaded, defaults LLMConfig) LLMConfig {
	result := loaded

	if result.Provider == "" {
		result.Provider = defaults.Provider
	}
	if result.Model == "" {
		result.Model = defaults.Model
	}
	// Temperature 0 is a legitimate choice, but an absent value also reads as 0.
	// Keep the default unless something else in the section was set.
	if result.Temperature == 0 && loaded.Model == "" {
		result.Temperature = defaults.Temperature
	}
	if result.MaxTokens == 0 {
		result.MaxTokens = defaults.MaxTokens
	}
	if result.TimeoutSeconds == 0 {
		result.TimeoutSeconds = defaults.TimeoutSeconds
	}

	return result
}

func mergeBuilderConfig(loaded, defaults BuilderConfig) BuilderConfig {
	result := loaded
	if result.CallDetection == "" {
		result.CallDetection = defaults.CallDetection
	}
	return result
}

func mergeFeaturesConfig(loaded, defaults FeaturesConfig) FeaturesConfig {
	result := loaded

	if result.MaxDegree == 0 {
		result.MaxDegree = defaults.MaxDegree
	}
	if result.IncludeCalls == nil {
		result.IncludeCalls = defaults.IncludeCalls
	}
	if result.Resolution == 0 {
		result.Resolution = defaults.Resolution
	}
	if result.Seed == 0 {
		result.Seed = defaults.Seed
	}
	if result.SampleSize == 0 {
		result.SampleSize = defaults.SampleSize
	}
	if result.MaxNamingCalls == 0 {
		result.MaxNamingCalls = defaults.MaxNamingCalls
	}
	if result.NamingConcurrency == 0 {
		result.NamingConcurrency = defaults.NamingConcurrency
	}
	if result.NamingRPS == 0 {
		result.NamingRPS = defaults.NamingRPS
	}
	if len(result.Exclude) == 0 {
		result.Exclude = defaults.Exclude
	}

	return result
}

func mergeAutoPacksConfig(loaded, defaults AutoPacksConfig) AutoPacksConfig {
	result := loaded
	if result.TopN == 0 {
		result.TopN = defaults.TopN
	}
	return result
}
