package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pario-ai/glimpse/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all Glimpse configuration.
type Config struct {
	DBPath      string            `yaml:"db_path"`
	Ring        RingConfig        `yaml:"ring"`
	Snapshot    SnapshotConfig    `yaml:"snapshot"`
	Cache       CacheConfig       `yaml:"cache"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Router      RouterConfig      `yaml:"router"`
	Local       LocalConfig       `yaml:"local"`
	Cloud       CloudConfig       `yaml:"cloud"`
	Vision      VisionConfig      `yaml:"vision"`
	Distill     DistillConfig     `yaml:"distill"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Rulebook    []RuleConfig      `yaml:"rulebook"`
}

// RingConfig sizes the input event ring.
type RingConfig struct {
	Capacity int           `yaml:"capacity"`
	Window   time.Duration `yaml:"window"`
}

// SnapshotConfig controls payload assembly.
type SnapshotConfig struct {
	MaxBytes         int           `yaml:"max_bytes"`
	CaptionTimeout   time.Duration `yaml:"caption_timeout"`
	RequireWindow    bool          `yaml:"require_window"`
	RequireProcesses bool          `yaml:"require_processes"`
}

// CacheConfig controls the two-tier answer cache.
type CacheConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Capacity            int           `yaml:"capacity"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	MaxAge              time.Duration `yaml:"max_age"`
	SweepSchedule       string        `yaml:"sweep_schedule"`
}

// EmbeddingConfig selects the engine used by the similarity tier.
// Provider is "hash" (default, offline), "ollama" or "genai".
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	Dimensions  int    `yaml:"dimensions"`
	OllamaURL   string `yaml:"ollama_url"`
	OllamaModel string `yaml:"ollama_model"`
	GenAIModel  string `yaml:"genai_model"`
}

// RouterConfig holds the decision engine's tunables.
type RouterConfig struct {
	CloudBias          float64       `yaml:"cloud_bias"`
	FallbackWindow     time.Duration `yaml:"fallback_window"`
	DailyCostCeiling   float64       `yaml:"daily_cost_ceiling"`
	EarlyExit          bool          `yaml:"early_exit"`
	EarlyExitThreshold float64       `yaml:"early_exit_threshold"`
	EarlyExitMinTokens int           `yaml:"early_exit_min_tokens"`
	CompletionTokens   int           `yaml:"completion_tokens"`
}

// LocalConfig points at the locally hosted small model.
type LocalConfig struct {
	URL             string  `yaml:"url"`
	Model           string  `yaml:"model"`
	TokensPerSecond float64 `yaml:"tokens_per_second"`
	Overhead        float64 `yaml:"overhead_seconds"`
	Confidence      float64 `yaml:"confidence"`
}

// CloudConfig points at the cloud-hosted large model.
type CloudConfig struct {
	APIKey          string              `yaml:"api_key"`
	Model           string              `yaml:"model"`
	TokensPerSecond float64             `yaml:"tokens_per_second"`
	Overhead        float64             `yaml:"overhead_seconds"`
	Confidence      float64             `yaml:"confidence"`
	Pricing         models.ModelPricing `yaml:"pricing"`
}

// VisionConfig controls screenshot captioning.
type VisionConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// DistillConfig controls the distillation queue and its spool file.
type DistillConfig struct {
	Capacity      int    `yaml:"capacity"`
	SpoolPath     string `yaml:"spool_path"`
	SpoolSchedule string `yaml:"spool_schedule"`
}

// CalibrationConfig controls how often confidence is recalibrated.
type CalibrationConfig struct {
	Schedule string `yaml:"schedule"`
}

// RuleConfig maps a window-title pattern to a canned answer.
type RuleConfig struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Answer  string `yaml:"answer"`
}

// APIKeyEnv is consulted for cloud.api_key when the config leaves it empty.
const APIKeyEnv = "GEMINI_API_KEY"

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath: "glimpse.db",
		Ring: RingConfig{
			Capacity: 4096,
			Window:   10 * time.Second,
		},
		Snapshot: SnapshotConfig{
			MaxBytes:       32 * 1024,
			CaptionTimeout: 750 * time.Millisecond,
			RequireWindow:  true,
		},
		Cache: CacheConfig{
			Enabled:             true,
			Capacity:            1024,
			SimilarityThreshold: 0.9,
			SweepSchedule:       "@every 10m",
		},
		Embedding: EmbeddingConfig{
			Provider:    "hash",
			Dimensions:  256,
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "embeddinggemma",
			GenAIModel:  "text-embedding-004",
		},
		Router: RouterConfig{
			CloudBias:          1.2,
			FallbackWindow:     2 * time.Second,
			DailyCostCeiling:   5.0,
			EarlyExit:          true,
			EarlyExitThreshold: 0.85,
			EarlyExitMinTokens: 16,
			CompletionTokens:   160,
		},
		Local: LocalConfig{
			URL:             "http://localhost:11434",
			Model:           "llama3.2:3b",
			TokensPerSecond: 40,
			Overhead:        0.15,
			Confidence:      0.7,
		},
		Cloud: CloudConfig{
			Model:           "gemini-2.5-flash",
			TokensPerSecond: 120,
			Overhead:        0.6,
			Confidence:      0.9,
			Pricing: models.ModelPricing{
				Model:          "gemini-2.5-flash",
				PromptCost:     0.0003,
				CompletionCost: 0.0025,
			},
		},
		Vision: VisionConfig{
			Enabled: true,
			Model:   "gemini-2.5-flash",
		},
		Distill: DistillConfig{
			Capacity:      5000,
			SpoolPath:     "distill.jsonl",
			SpoolSchedule: "@every 5m",
		},
		Calibration: CalibrationConfig{
			Schedule: "@every 1h",
		},
	}
}

// LoadEnv loads KEY=value pairs from dotenv files into the process
// environment. Missing files are not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Cloud.APIKey == "" {
		c.Cloud.APIKey = os.Getenv(APIKeyEnv)
	}
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return cfg, err
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Ring.Capacity <= 0:
		return fmt.Errorf("ring.capacity must be positive, got %d", c.Ring.Capacity)
	case c.Snapshot.MaxBytes <= 0:
		return fmt.Errorf("snapshot.max_bytes must be positive, got %d", c.Snapshot.MaxBytes)
	case c.Cache.Capacity <= 0:
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	case c.Cache.SimilarityThreshold <= 0 || c.Cache.SimilarityThreshold > 1:
		return fmt.Errorf("cache.similarity_threshold must be in (0,1], got %v", c.Cache.SimilarityThreshold)
	case c.Router.CloudBias <= 0:
		return fmt.Errorf("router.cloud_bias must be positive, got %v", c.Router.CloudBias)
	case c.Router.EarlyExitThreshold <= 0 || c.Router.EarlyExitThreshold > 1:
		return fmt.Errorf("router.early_exit_threshold must be in (0,1], got %v", c.Router.EarlyExitThreshold)
	case c.Distill.Capacity <= 0:
		return fmt.Errorf("distill.capacity must be positive, got %d", c.Distill.Capacity)
	}
	return nil
}
