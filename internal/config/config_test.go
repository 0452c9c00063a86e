package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/convo-memory/internal/model"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Summary.MaxChars != 500 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if len(cfg.Extract.Topics["hobbies"]) == 0 {
		t.Error("expected default topic keywords")
	}
}

func TestLoadYAML(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeFile(t, "config.yaml", `
store:
  path: /tmp/x.db
summary:
  max_chars: 200
  cache_ttl: 30s
dedup:
  threshold: 0.7
extract:
  topics:
    pets: [dog, cat]
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/tmp/x.db" || cfg.Summary.MaxChars != 200 {
		t.Errorf("yaml not applied: %+v", cfg)
	}
	if cfg.Summary.CacheTTL != 30*time.Second {
		t.Errorf("expected 30s ttl, got %v", cfg.Summary.CacheTTL)
	}
	if cfg.Dedup.Threshold != 0.7 || cfg.Dedup.Comparator != "lexical" {
		t.Errorf("dedup not merged with defaults: %+v", cfg.Dedup)
	}
	if _, ok := cfg.Extract.Topics["pets"]; !ok {
		t.Error("expected pets topic")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json log format, got %q", cfg.Log.Format)
	}
}

func TestEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONVO_MEMORY_DB", "/tmp/env.db")
	t.Setenv("CONVO_MEMORY_SUMMARY_MAX_CHARS", "64")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/tmp/env.db" || cfg.Summary.MaxChars != 64 {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CONVO_MEMORY_DB=/tmp/dotenv.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CONVO_MEMORY_DB") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Path != "/tmp/dotenv.db" {
		t.Errorf("expected .env value, got %q", cfg.Store.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"postgres without url", func(c *Config) { c.Store.Driver = "postgres" }},
		{"tiny cap", func(c *Config) { c.Summary.MaxChars = 3 }},
		{"embedding without provider", func(c *Config) { c.Dedup.Comparator = "embedding" }},
		{"threshold out of range", func(c *Config) { c.Dedup.Threshold = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, model.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent to testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatalf("restore cwd %s: %v", wd, err)
		}
	})
}
