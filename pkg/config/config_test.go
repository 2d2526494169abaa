package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Snapshot.MaxBytes != 32*1024 {
		t.Errorf("expected 32KB cap, got %d", cfg.Snapshot.MaxBytes)
	}
	if cfg.Cache.SimilarityThreshold != 0.9 {
		t.Errorf("expected 0.9 threshold, got %v", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Router.CloudBias != 1.2 {
		t.Errorf("expected 1.2 bias, got %v", cfg.Router.CloudBias)
	}
	if cfg.Router.FallbackWindow != 2*time.Second {
		t.Errorf("expected 2s fallback, got %v", cfg.Router.FallbackWindow)
	}
	if cfg.Distill.Capacity != 5000 {
		t.Errorf("expected 5000 capacity, got %d", cfg.Distill.Capacity)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_GENAI_KEY", "gk-test-123")

	content := `
db_path: "test.db"
cloud:
  api_key: ${TEST_GENAI_KEY}
  model: gemini-2.5-pro
cache:
  capacity: 10
  similarity_threshold: 0.95
router:
  cloud_bias: 1.5
  fallback_window: 1500ms
  daily_cost_ceiling: 0.25
rulebook:
  - name: save-dialog
    pattern: "^Save As"
    answer: "Pick a folder and press Enter."
`
	dir := t.TempDir()
	path := filepath.Join(dir, "glimpse.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "test.db" {
		t.Errorf("expected test.db, got %s", cfg.DBPath)
	}
	if cfg.Cloud.APIKey != "gk-test-123" {
		t.Errorf("env var not expanded: got %s", cfg.Cloud.APIKey)
	}
	if cfg.Cache.Capacity != 10 {
		t.Errorf("expected capacity 10, got %d", cfg.Cache.Capacity)
	}
	if cfg.Router.FallbackWindow != 1500*time.Millisecond {
		t.Errorf("expected 1.5s fallback, got %v", cfg.Router.FallbackWindow)
	}
	if cfg.Router.CloudBias != 1.5 {
		t.Errorf("expected bias 1.5, got %v", cfg.Router.CloudBias)
	}
	// Untouched sections keep their defaults.
	if cfg.Ring.Window != 10*time.Second {
		t.Errorf("expected default ring window, got %v", cfg.Ring.Window)
	}
	if len(cfg.Rulebook) != 1 || cfg.Rulebook[0].Name != "save-dialog" {
		t.Fatalf("unexpected rulebook: %+v", cfg.Rulebook)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/glimpse.yaml")
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadOrDefaultMissing(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "glimpse.db" {
		t.Errorf("expected default db path, got %s", cfg.DBPath)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  similarity_threshold: 1.5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error for threshold > 1")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GLIMPSE_TEST_DOTENV=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GLIMPSE_TEST_DOTENV", "")
	os.Unsetenv("GLIMPSE_TEST_DOTENV")

	if err := LoadEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("GLIMPSE_TEST_DOTENV"); got != "loaded" {
		t.Errorf("expected dotenv value, got %q", got)
	}
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnv, "gk-from-env")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cloud.APIKey != "gk-from-env" {
		t.Errorf("expected key from %s, got %q", APIKeyEnv, cfg.Cloud.APIKey)
	}
}
