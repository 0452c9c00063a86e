// Package config loads the memory store configuration from an optional YAML
// file, a .env file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/convo-memory/internal/embedding"
	"github.com/rcliao/convo-memory/internal/logging"
	"github.com/rcliao/convo-memory/internal/model"
)

// Config is the full configuration. It is passed explicitly to constructors.
type Config struct {
	Store     StoreConfig       `yaml:"store"`
	Summary   SummaryConfig     `yaml:"summary"`
	Dedup     DedupConfig       `yaml:"dedup"`
	Embedding embedding.Options `yaml:"embedding"`
	Extract   ExtractConfig     `yaml:"extract"`
	Log       logging.Options   `yaml:"log"`
}

// StoreConfig selects and locates the record store.
type StoreConfig struct {
	Driver      string `yaml:"driver"` // sqlite or postgres
	Path        string `yaml:"path"`
	PostgresURL string `yaml:"postgres_url"`
}

// SummaryConfig tunes the session summarizer.
type SummaryConfig struct {
	MaxChars int           `yaml:"max_chars"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// DedupConfig tunes the merge engine.
type DedupConfig struct {
	Comparator string  `yaml:"comparator"` // lexical or embedding
	Threshold  float64 `yaml:"threshold"`
}

// ExtractConfig maps each topic to the keywords that tag a fact with it.
type ExtractConfig struct {
	Topics map[string][]string `yaml:"topics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(home, ".convo-memory", "memory.db"),
		},
		Summary: SummaryConfig{MaxChars: 500, CacheTTL: 10 * time.Minute},
		Dedup:   DedupConfig{Comparator: "lexical", Threshold: 0.5},
		Extract: ExtractConfig{Topics: map[string][]string{
			"hobbies":     {"hiking", "photography", "reading", "painting", "gaming", "running", "cooking", "hobby"},
			"photography": {"photography", "camera", "photos"},
			"work":        {"work", "job", "engineer", "scientist", "career", "office", "company"},
			"food":        {"food", "eat", "vegetarian", "vegan", "coffee", "tea"},
			"location":    {"live in", "lives in", "from", "moved to"},
			"personal":    {"my name", "i'm", "years old", "birthday"},
			"preferences": {"prefer", "favorite", "love", "like", "hate"},
		}},
		Log: logging.Options{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when path
// is empty), a .env file in the working directory if present, and environment
// variables. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Store.Path, "CONVO_MEMORY_DB")
	setString(&c.Store.Driver, "CONVO_MEMORY_DRIVER")
	setString(&c.Store.PostgresURL, "POSTGRES_DB_URL")
	setString(&c.Log.Level, "CONVO_MEMORY_LOG_LEVEL")
	setString(&c.Log.Format, "CONVO_MEMORY_LOG_FORMAT")
	setString(&c.Embedding.Provider, "CONVO_MEMORY_EMBED_PROVIDER")
	setString(&c.Embedding.URL, "CONVO_MEMORY_EMBED_URL")
	setString(&c.Embedding.Model, "CONVO_MEMORY_EMBED_MODEL")
	setString(&c.Embedding.APIKey, "OPENAI_API_KEY")
	setString(&c.Dedup.Comparator, "CONVO_MEMORY_COMPARATOR")

	if v, ok := os.LookupEnv("CONVO_MEMORY_SUMMARY_MAX_CHARS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CONVO_MEMORY_SUMMARY_MAX_CHARS: %w", err)
		}
		c.Summary.MaxChars = n
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return model.Invalid("store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.PostgresURL == "" {
			return model.Invalid("store.postgres_url (or POSTGRES_DB_URL) is required for postgres")
		}
	default:
		return model.Invalid("unknown store.driver %q (valid: sqlite, postgres)", c.Store.Driver)
	}

	if c.Summary.MaxChars < 16 {
		return model.Invalid("summary.max_chars must be at least 16, got %d", c.Summary.MaxChars)
	}

	switch c.Dedup.Comparator {
	case "lexical":
	case "embedding":
		if c.Embedding.Provider == "" {
			return model.Invalid("dedup.comparator embedding needs embedding.provider")
		}
	default:
		return model.Invalid("unknown dedup.comparator %q (valid: lexical, embedding)", c.Dedup.Comparator)
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return model.Invalid("dedup.threshold must be in (0, 1], got %v", c.Dedup.Threshold)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
