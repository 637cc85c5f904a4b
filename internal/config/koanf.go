// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/cartelera/config.yaml",
	"/etc/cartelera/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all built-in defaults. These are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:            "",
			MaxConns:       8,
			MinConns:       1,
			ConnectTimeout: 10 * time.Second,
		},
		Enrich: EnrichConfig{
			BaseURL:         "",
			APIKey:          "",
			ModelOro:        "gpt-4o",
			ModelPlata:      "gpt-4o-mini",
			ModelBronce:     "gpt-4o-mini",
			ModelFilter:     "gpt-4o-mini",
			BatchSize:       10,
			MaxTokens:       4096,
			Temperature:     0.2,
			InputCharBudget: 1200,
			Timeout:         90 * time.Second,
			CacheDir:        "", // memo cache disabled by default
			CacheTTL:        14 * 24 * time.Hour,
		},
		Embed: EmbedConfig{
			URL:        "",
			APIKey:     "",
			Model:      "text-embedding-3-large",
			Dimensions: 1024,
			Timeout:    30 * time.Second,
			CacheDir:   ".cartelera",
			Threshold:  0.30,
			TopK:       3,
		},
		Images: ImagesConfig{
			UnsplashKey: "",
			PexelsKey:   "",
			PerPage:     10,
			RandomPool:  5,
			CachePath:   ".cartelera/image-cache.json",
			Timeout:     30 * time.Second,
		},
		Geocoder: GeocoderConfig{
			BaseURL:     "https://nominatim.openstreetmap.org",
			UserAgent:   "cartelera-pipeline/1.0 (events ingestion)",
			MinInterval: 1100 * time.Millisecond,
			Timeout:     30 * time.Second,
		},
		Render: RenderConfig{
			BaseURL: "",
			APIKey:  "",
			Timeout: 60 * time.Second,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "",
			SubjectPrefix: "cartelera",
		},
		Metrics: MetricsConfig{
			Addr: "", // listener disabled by default
		},
		RateLimit: RateLimitConfig{
			BaseDelay:  2 * time.Second,
			Multiplier: 2.0,
			MaxDelay:   60 * time.Second,
			Jitter:     2 * time.Second,
		},
		Retry: RetryConfig{
			Attempts:     3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Jitter:       500 * time.Millisecond,
		},
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "cartelera-pipeline/1.0",
		},
		Pipeline: PipelineConfig{
			Concurrency: 3,
			Timezone:    "Europe/Madrid",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// Transform environment variable names to koanf paths:
	// DATABASE_URL -> database.dsn
	// UNSPLASH_ACCESS_KEY -> images.unsplash_key
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc transforms environment variable names to koanf
// config paths. Unmapped variables are skipped so that unrelated
// environment variables never pollute the configuration.
//
// Examples:
//   - DATABASE_URL -> database.dsn
//   - AI_API_KEY -> enrich.api_key
//   - GEOCODER_USER_AGENT -> geocoder.user_agent
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Database mappings
		"database_url":             "database.dsn",
		"database_max_conns":       "database.max_conns",
		"database_min_conns":       "database.min_conns",
		"database_connect_timeout": "database.connect_timeout",

		// Generative model mappings
		"ai_base_url":             "enrich.base_url",
		"ai_api_key":              "enrich.api_key",
		"ai_model_oro":            "enrich.model_oro",
		"ai_model_plata":          "enrich.model_plata",
		"ai_model_bronce":         "enrich.model_bronce",
		"ai_model_filter":         "enrich.model_filter",
		"enrich_batch_size":       "enrich.batch_size",
		"enrich_max_tokens":       "enrich.max_tokens",
		"enrich_temperature":      "enrich.temperature",
		"enrich_input_budget":     "enrich.input_char_budget",
		"enrich_timeout":          "enrich.timeout",
		"enrich_cache_dir":        "enrich.cache_dir",
		"enrich_cache_ttl":        "enrich.cache_ttl",

		// Embedding mappings
		"embeddings_url":        "embed.url",
		"embeddings_api_key":    "embed.api_key",
		"embeddings_model":      "embed.model",
		"embeddings_dimensions": "embed.dimensions",
		"embeddings_timeout":    "embed.timeout",
		"embed_cache_dir":       "embed.cache_dir",
		"classify_threshold":    "embed.threshold",
		"classify_top_k":        "embed.top_k",

		// Image provider mappings
		"unsplash_access_key": "images.unsplash_key",
		"pexels_api_key":      "images.pexels_key",
		"image_per_page":      "images.per_page",
		"image_random_pool":   "images.random_pool",
		"image_cache_path":    "images.cache_path",
		"image_timeout":       "images.timeout",

		// Geocoder mappings
		"geocoder_url":          "geocoder.base_url",
		"geocoder_user_agent":   "geocoder.user_agent",
		"geocoder_min_interval": "geocoder.min_interval",
		"geocoder_timeout":      "geocoder.timeout",

		// Rendering service mappings
		"render_url":     "render.base_url",
		"render_api_key": "render.api_key",
		"render_timeout": "render.timeout",

		// NATS mappings
		"nats_enabled":        "nats.enabled",
		"nats_url":            "nats.url",
		"nats_subject_prefix": "nats.subject_prefix",

		// Metrics mappings
		"metrics_addr": "metrics.addr",

		// Rate limit mappings
		"rate_limit_base_delay": "rate_limit.base_delay",
		"rate_limit_multiplier": "rate_limit.multiplier",
		"rate_limit_max_delay":  "rate_limit.max_delay",
		"rate_limit_jitter":     "rate_limit.jitter",

		// Retry mappings
		"retry_attempts":      "retry.attempts",
		"retry_initial_delay": "retry.initial_delay",
		"retry_max_delay":     "retry.max_delay",
		"retry_jitter":        "retry.jitter",

		// HTTP mappings
		"http_timeout":    "http.timeout",
		"http_user_agent": "http.user_agent",

		// Pipeline mappings
		"pipeline_concurrency": "pipeline.concurrency",
		"pipeline_timezone":    "pipeline.timezone",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
