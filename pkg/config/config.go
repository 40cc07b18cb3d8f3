// Package config loads the ragocore configuration tree from TOML, environment
// variables, and defaults, following spec.md §6's recognised key set.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ragocore/ragocore/pkg/core"
	"github.com/spf13/viper"
)

// RunnerConfig describes one configured model-runner backend (§6 llm_runners).
type RunnerConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"` // ollama | openai | debug
	Host string `mapstructure:"host"`
	// APIKeyEnv names the environment variable holding the backend's API key;
	// the key itself is never stored in config.
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// KBStoreConfig describes one configured KB store backend (§6 kbstores).
type KBStoreConfig struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"` // sqlite | qdrant
	Path string `mapstructure:"path"` // store root folder (KB descriptors; sqlite keeps db/vectors.db under it)
	Host string `mapstructure:"host"` // qdrant host:port
}

// DocSourceConfig describes one configured document source (§6 doc_sources).
type DocSourceConfig struct {
	Name string `mapstructure:"name"`
	Root string `mapstructure:"root"`
}

// RAGSettings carries the tunables spec.md §6 groups under rag_settings:
// chunking, retrieval top-k, and the Reranker's three thresholds (§4.7),
// named to match pkg/rerank.Settings directly.
type RAGSettings struct {
	ChunkSize    int `mapstructure:"rag_char_chunk_size"`
	ChunkOverlap int `mapstructure:"rag_char_overlap"`
	TopK         int `mapstructure:"rag_document_count"`

	CosineDistanceIrrelevanceThreshold float64 `mapstructure:"rag_cosine_distance_irrelevance_threshold"`
	ScoreMargin                        float64 `mapstructure:"rag_score_margin"`
	SimilarityScoreThreshold           float64 `mapstructure:"rag_similarity_score_threshold"`
}

// GenerationGuardConfig carries the Generation Guard's four thresholds (§4.8).
type GenerationGuardConfig struct {
	SafeTokenThreshold int `mapstructure:"safe_token_threshold"`
	MaxRepeats         int `mapstructure:"max_repeats"`
	WindowSize         int `mapstructure:"window_size"`
	TokenCheckInterval int `mapstructure:"token_check_interval"`
}

// Config is the root configuration tree, matching spec.md §6's key list:
// llm_runners, kbstores, doc_sources, default_system_prompt, rag_settings,
// generation_guard.
type Config struct {
	Home                string                `mapstructure:"home"`
	LLMRunners          []RunnerConfig        `mapstructure:"llm_runners"`
	KBStores            []KBStoreConfig       `mapstructure:"kbstores"`
	DocSources          []DocSourceConfig     `mapstructure:"doc_sources"`
	DefaultSystemPrompt string                `mapstructure:"default_system_prompt"`
	RAGSettings         RAGSettings           `mapstructure:"rag_settings"`
	GenerationGuard     GenerationGuardConfig `mapstructure:"generation_guard"`
}

const envPrefix = "RAGOCORE"

// Load reads configuration from configPath (a TOML file) if non-empty,
// falling back to $RAGOCORE_HOME/ragocore.toml, then applies environment
// overrides and defaults. Mirrors the teacher's pkg/config.Load shape.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setDefaults(v)
	bindEnvVars(v)

	if configPath == "" {
		home, err := resolveHome(v)
		if err != nil {
			return nil, err
		}
		configPath = filepath.Join(home, "ragocore.toml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.NewConfigurationError("config", configPath, "failed to read config file", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.NewConfigurationError("config", configPath, "failed to unmarshal config", err)
	}

	cfg.Home = expandHomePath(cfg.Home)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func resolveHome(v *viper.Viper) (string, error) {
	home := v.GetString("home")
	if home == "" {
		home = os.Getenv("RAGOCORE_HOME")
	}
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", core.NewConfigurationError("config", "home", "cannot determine home directory", err)
		}
		home = filepath.Join(userHome, ".ragocore")
	}
	return expandHomePath(home), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("home", "")
	v.SetDefault("default_system_prompt", "You are a helpful assistant. Answer using only the supplied context when it is relevant.")
	v.SetDefault("rag_settings.rag_char_chunk_size", 1500)
	v.SetDefault("rag_settings.rag_char_overlap", 200)
	v.SetDefault("rag_settings.rag_document_count", 8)
	v.SetDefault("rag_settings.rag_cosine_distance_irrelevance_threshold", 0.6)
	v.SetDefault("rag_settings.rag_score_margin", 0.15)
	v.SetDefault("rag_settings.rag_similarity_score_threshold", 0.97)
	v.SetDefault("generation_guard.safe_token_threshold", 200)
	v.SetDefault("generation_guard.max_repeats", 8)
	v.SetDefault("generation_guard.window_size", 12)
	v.SetDefault("generation_guard.token_check_interval", 20)
}

func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	_ = v.BindEnv("home", "RAGOCORE_HOME")
}

// Validate checks the loaded configuration against the invariants
// implementations must not guess (every runner/store needs a name and type).
func (c *Config) Validate() error {
	for _, r := range c.LLMRunners {
		if r.Name == "" {
			return core.NewValidationError("llm_runners[].name", r, "runner name must not be empty")
		}
		switch r.Type {
		case "ollama", "openai", "debug":
		default:
			return core.NewValidationError("llm_runners[].type", r.Type, "unknown runner type")
		}
	}
	for _, s := range c.KBStores {
		if s.Name == "" {
			return core.NewValidationError("kbstores[].name", s, "store name must not be empty")
		}
		switch s.Type {
		case "sqlite", "qdrant":
		default:
			return core.NewValidationError("kbstores[].type", s.Type, "unknown kbstore type")
		}
	}
	for _, d := range c.DocSources {
		if d.Name == "" {
			return core.NewValidationError("doc_sources[].name", d, "source name must not be empty")
		}
		if d.Root == "" {
			return core.NewValidationError("doc_sources[].root", d, "source root must not be empty")
		}
	}
	return nil
}

// expandHomePath expands a leading "~" to the user's home directory.
func expandHomePath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return userHome
		}
		return filepath.Join(userHome, path[2:])
	}
	return path
}

// ensureParentDir creates the parent directory of path if it doesn't exist,
// mirroring the teacher's config-loading helper of the same name.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent dir %s: %w", dir, err)
	}
	return nil
}
