// Package config provides configuration loading for the deck evaluator.
// Supports YAML files, .env files, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the deck evaluator.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Source        SourceConfig        `yaml:"source"`
	Scratch       ScratchConfig       `yaml:"scratch"`
	Extract       ExtractConfig       `yaml:"extract"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Batch         BatchConfig         `yaml:"batch"`
	Notify        NotifyConfig        `yaml:"notify"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
}

// SourceConfig describes where decks are discovered.
type SourceConfig struct {
	Dir       string `yaml:"dir"`
	Extension string `yaml:"extension"`
}

// ScratchConfig describes where per-document assets are written.
type ScratchConfig struct {
	Root string `yaml:"root"`
}

// ExtractConfig holds Extract stage settings.
type ExtractConfig struct {
	MaxPages    int     `yaml:"max_pages"`
	Strategy    string  `yaml:"strategy"` // png, jpeg or jpg
	DPI         float64 `yaml:"dpi"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

// AnalysisConfig holds analysis capability settings.
type AnalysisConfig struct {
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	TextModel         string        `yaml:"text_model"`
	VisionModel       string        `yaml:"vision_model"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	MaxDesignAssets   int           `yaml:"max_design_assets"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// BatchConfig holds Batch Processor settings.
type BatchConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	DocumentTimeout time.Duration `yaml:"document_timeout"` // 0 disables
	ParallelStages  bool          `yaml:"parallel_stages"`
}

// NotifyConfig selects where batch lifecycle events go.
type NotifyConfig struct {
	Driver string      `yaml:"driver"` // log or redis
	Redis  RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for event publishing.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	Prefix   string `yaml:"prefix"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads .env, the optional YAML file, and environment overrides, then validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // .env is optional

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     15 * time.Minute,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   15 * time.Minute,
			GracefulShutdown: 10 * time.Second,
		},
		Source: SourceConfig{
			Dir:       "test_ppts",
			Extension: ".pdf",
		},
		Scratch: ScratchConfig{
			Root: "temp_images",
		},
		Extract: ExtractConfig{
			MaxPages:    6,
			Strategy:    "png",
			DPI:         100,
			JPEGQuality: 85,
		},
		Analysis: AnalysisConfig{
			BaseURL:           "https://openrouter.ai/api/v1/chat/completions",
			TextModel:         "meta-llama/llama-3.1-70b-instruct",
			VisionModel:       "meta-llama/llama-3.2-11b-vision-instruct",
			CallTimeout:       2 * time.Minute,
			MaxDesignAssets:   3,
			MaxRetries:        3,
			RequestsPerSecond: 2,
			Burst:             3,
		},
		Batch: BatchConfig{
			Concurrency:    3,
			ParallelStages: true,
		},
		Notify: NotifyConfig{
			Driver: "log",
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "evaluations",
				Prefix:  "deck:",
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "console",
			ServiceName: "deck-evaluator",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if strings.TrimSpace(c.Source.Dir) == "" {
		return fmt.Errorf("source dir must not be empty")
	}

	if !strings.HasPrefix(c.Source.Extension, ".") {
		return fmt.Errorf("source extension must start with a dot: %q", c.Source.Extension)
	}

	if strings.TrimSpace(c.Scratch.Root) == "" {
		return fmt.Errorf("scratch root must not be empty")
	}

	if c.Extract.MaxPages < 1 {
		return fmt.Errorf("max_pages must be positive, got %d", c.Extract.MaxPages)
	}

	switch c.Extract.Strategy {
	case "png", "jpeg", "jpg":
	default:
		return fmt.Errorf("invalid extract strategy: %s", c.Extract.Strategy)
	}

	if c.Extract.DPI <= 0 {
		return fmt.Errorf("dpi must be positive")
	}

	if c.Extract.JPEGQuality < 1 || c.Extract.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.Extract.JPEGQuality)
	}

	if c.Analysis.MaxDesignAssets < 1 {
		return fmt.Errorf("max_design_assets must be positive")
	}

	if c.Analysis.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive")
	}

	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}

	if c.Notify.Driver != "log" && c.Notify.Driver != "redis" {
		return fmt.Errorf("invalid notify driver: %s", c.Notify.Driver)
	}

	return nil
}

// RequireAPIKey returns the analysis API key or a config error.
func (c *Config) RequireAPIKey() (string, error) {
	if c.Analysis.APIKey == "" {
		return "", fmt.Errorf("OPENROUTER_API_KEY environment variable not set")
	}
	return c.Analysis.APIKey, nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.Analysis.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Analysis.TextModel = v
	}

	if v := os.Getenv("VISION_MODEL"); v != "" {
		cfg.Analysis.VisionModel = v
	}

	if v := os.Getenv("SOURCE_DIR"); v != "" {
		cfg.Source.Dir = v
	}

	if v := os.Getenv("SCRATCH_DIR"); v != "" {
		cfg.Scratch.Root = v
	}

	if v := os.Getenv("CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Concurrency = n
		}
	}

	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Notify.Driver = "redis"
		cfg.Notify.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
