// Package config loads process configuration from an optional YAML file,
// overridden by environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AI providers.
const (
	ProviderAuto       = "auto"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderNone       = "none"
)

type Config struct {
	Discovery Discovery `yaml:"discovery"`
	AI        AI        `yaml:"ai"`
	Database  Database  `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	HTTP      HTTP      `yaml:"http"`
	Queue     Queue     `yaml:"queue"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Log       Log       `yaml:"log"`
}

type Discovery struct {
	FirecrawlAPIKey  string        `yaml:"firecrawl_api_key"`
	FirecrawlBaseURL string        `yaml:"firecrawl_base_url"`
	DirectoryBaseURL string        `yaml:"directory_base_url"`
	Timeout          time.Duration `yaml:"timeout"`
}

type AI struct {
	// Provider is one of auto, openrouter, gemini, none. Auto picks the first
	// provider with an API key.
	Provider       string        `yaml:"provider"`
	OpenRouter     Provider      `yaml:"openrouter"`
	Gemini         Provider      `yaml:"gemini"`
	MaxRetries     int           `yaml:"max_retries"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type Provider struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Redis struct {
	// URL enables the shared run lease. Empty keeps leases in process.
	URL string `yaml:"url"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Queue struct {
	Workers  int           `yaml:"workers"`
	Size     int           `yaml:"size"`
	LeaseTTL time.Duration `yaml:"lease_ttl"`
}

type Pipeline struct {
	MinRelevance int `yaml:"min_relevance"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Discovery: Discovery{Timeout: 30 * time.Second},
		AI: AI{
			Provider:       ProviderAuto,
			OpenRouter:     Provider{Model: "google/gemini-2.0-flash-exp:free"},
			Gemini:         Provider{Model: "gemini-2.0-flash"},
			MaxRetries:     3,
			RequestTimeout: 60 * time.Second,
		},
		Database: Database{Path: "data/leads.db"},
		HTTP:     HTTP{Addr: ":8080", ShutdownTimeout: 15 * time.Second},
		Queue:    Queue{Workers: 2, Size: 64, LeaseTTL: 15 * time.Minute},
		Pipeline: Pipeline{MinRelevance: 40},
		Log:      Log{Level: "info", Format: "json"},
	}
}

// Load reads the YAML file at path (optional) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadDotEnv loads variables from the given .env files that exist. Variables
// already set in the environment win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return err
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	envString(&c.Discovery.FirecrawlAPIKey, "FIRECRAWL_API_KEY")
	envString(&c.Discovery.FirecrawlBaseURL, "FIRECRAWL_BASE_URL")
	envString(&c.Discovery.DirectoryBaseURL, "DIRECTORY_BASE_URL")

	envString(&c.AI.Provider, "AI_PROVIDER")
	envString(&c.AI.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	envString(&c.AI.OpenRouter.Model, "OPENROUTER_MODEL")
	envString(&c.AI.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
	envString(&c.AI.Gemini.APIKey, "GEMINI_API_KEY")
	envString(&c.AI.Gemini.Model, "GEMINI_MODEL")
	envString(&c.AI.Gemini.BaseURL, "GEMINI_BASE_URL")

	envString(&c.Database.Path, "DATABASE_PATH")
	envString(&c.Redis.URL, "REDIS_URL")
	envString(&c.HTTP.Addr, "HTTP_ADDR")
	envString(&c.Log.Level, "LOG_LEVEL")
	envString(&c.Log.Format, "LOG_FORMAT")

	var err error
	if c.AI.MaxRetries, err = envInt("AI_MAX_RETRIES", c.AI.MaxRetries); err != nil {
		return err
	}
	if c.AI.RateLimitRPS, err = envFloat("AI_RATE_LIMIT_RPS", c.AI.RateLimitRPS); err != nil {
		return err
	}
	if c.AI.RequestTimeout, err = envDuration("AI_REQUEST_TIMEOUT", c.AI.RequestTimeout); err != nil {
		return err
	}
	if c.Queue.Workers, err = envInt("WORKERS", c.Queue.Workers); err != nil {
		return err
	}
	if c.Queue.Size, err = envInt("QUEUE_SIZE", c.Queue.Size); err != nil {
		return err
	}
	if c.Queue.LeaseTTL, err = envDuration("LEASE_TTL", c.Queue.LeaseTTL); err != nil {
		return err
	}
	if c.Pipeline.MinRelevance, err = envInt("MIN_RELEVANCE", c.Pipeline.MinRelevance); err != nil {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.AI.Provider {
	case ProviderAuto, ProviderOpenRouter, ProviderGemini, ProviderNone:
	default:
		return fmt.Errorf("invalid AI_PROVIDER=%q (want auto, openrouter, gemini or none)", c.AI.Provider)
	}
	if c.AI.Provider == ProviderOpenRouter && c.AI.OpenRouter.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY is required when AI_PROVIDER=openrouter")
	}
	if c.AI.Provider == ProviderGemini && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=gemini")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("AI_MAX_RETRIES must be >= 0")
	}
	if c.AI.RateLimitRPS < 0 {
		return fmt.Errorf("AI_RATE_LIMIT_RPS must be >= 0")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("WORKERS must be >= 1")
	}
	if c.Queue.Size < 0 {
		return fmt.Errorf("QUEUE_SIZE must be >= 0")
	}
	if c.Pipeline.MinRelevance < 1 || c.Pipeline.MinRelevance > 100 {
		return fmt.Errorf("MIN_RELEVANCE must be between 1 and 100")
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid LOG_FORMAT=%q (want json or console)", c.Log.Format)
	}
	return nil
}

// ResolvedProvider returns the AI provider to use, resolving auto.
func (c Config) ResolvedProvider() string {
	if c.AI.Provider != ProviderAuto {
		return c.AI.Provider
	}
	switch {
	case c.AI.OpenRouter.APIKey != "":
		return ProviderOpenRouter
	case c.AI.Gemini.APIKey != "":
		return ProviderGemini
	default:
		return ProviderNone
	}
}
