package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config is the parsed config.yaml with secrets from the environment applied.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Assets    AssetsConfig    `yaml:"assets"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	LLM       LLMConfig       `yaml:"llm"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// HTTPConfig configures the listener and the middleware chain.
type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// LogConfig selects the zap level and encoding. File enables lumberjack rotation.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// AssetsConfig locates the startup assets. Watch marks them stale on change.
type AssetsConfig struct {
	ModelDir       string `yaml:"model_dir"`
	CasesDir       string `yaml:"cases_dir"`
	CaseBatches    int    `yaml:"case_batches"`
	SimilarCases   string `yaml:"similar_cases"`
	GuidelinesPath string `yaml:"guidelines"`
	Watch          bool   `yaml:"watch"`
}

// DatabaseConfig configures the optional audit log.
type DatabaseConfig struct {
	// Path of the SQLite audit log; empty disables it.
	Path string `yaml:"path"`
	// QueueSize bounds the predictions waiting for the writer. Overflow is dropped.
	QueueSize int `yaml:"queue_size"`
}

// CacheConfig sizes the prediction LRU.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// LLMConfig targets an OpenAI-compatible endpoint. APIKey only comes from the environment.
type LLMConfig struct {
	APIKey  string        `yaml:"-"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig paces the websocket sample stream.
type TelemetryConfig struct {
	Interval   time.Duration `yaml:"interval"`
	PingPeriod time.Duration `yaml:"ping_period"`
	SendBuffer int           `yaml:"send_buffer"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           8000,
			Timeout:        30 * time.Second,
			MaxBodyBytes:   1 << 20,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Assets: AssetsConfig{
			ModelDir:       "data/models",
			CasesDir:       "data/synthetic_cases",
			CaseBatches:    3,
			SimilarCases:   "data/similar_cases_database.json",
			GuidelinesPath: "data/clinical_guidelines/ctg_interpretation_guidelines.json",
			Watch:          true,
		},
		Database: DatabaseConfig{QueueSize: 256},
		Cache:    CacheConfig{Size: 1024},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Interval:   time.Second,
			PingPeriod: 30 * time.Second,
			SendBuffer: 64,
		},
	}
}

// Load reads path over the defaults, then applies secrets from .env and the environment.
// A missing config file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	// godotenv never overrides variables already set in the environment.
	_ = godotenv.Load(".env")
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if model := strings.TrimSpace(os.Getenv("OPENAI_MODEL")); model != "" {
		c.LLM.Model = model
	}
	if baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")); baseURL != "" {
		c.LLM.BaseURL = baseURL
	}
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if c.Assets.ModelDir == "" {
		return errors.New("assets.model_dir is required")
	}
	if c.Assets.CaseBatches < 0 {
		return fmt.Errorf("invalid assets.case_batches %d", c.Assets.CaseBatches)
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive, got %d", c.Cache.Size)
	}
	if c.Database.Path != "" && c.Database.QueueSize <= 0 {
		return fmt.Errorf("database.queue_size must be positive, got %d", c.Database.QueueSize)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive, got %d", c.HTTP.MaxBodyBytes)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
