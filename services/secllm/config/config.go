// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads service settings.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// SEC_LLM_* environment variables. The result is validated with
// go-playground/validator struct tags before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SEC_LLM_"

// Config is the full service configuration.
type Config struct {
	EDGAR     EDGARConfig     `yaml:"edgar"`
	Cache     CacheConfig     `yaml:"cache"`
	LLM       LLMConfig       `yaml:"llm"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EDGARConfig configures the SEC data client.
type EDGARConfig struct {
	// Identity is sent as the User-Agent; SEC requires a name and email.
	Identity             string        `yaml:"identity" validate:"required"`
	DataURL              string        `yaml:"data_url" validate:"required,url"`
	TickersURL           string        `yaml:"tickers_url" validate:"required,url"`
	RequestsPerSecond    float64       `yaml:"requests_per_second" validate:"gt=0,lte=10"`
	MaxRetries           uint          `yaml:"max_retries" validate:"lte=10"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval" validate:"gte=0"`
	Timeout              time.Duration `yaml:"timeout" validate:"gt=0"`
}

// CacheConfig selects the fetch cache.
type CacheConfig struct {
	Backend   string        `yaml:"backend" validate:"oneof=memory badger"`
	TTL       time.Duration `yaml:"ttl" validate:"gt=0"`
	BadgerDir string        `yaml:"badger_dir" validate:"required_if=Backend badger"`
}

// LLMConfig selects the model backend and models per stage.
type LLMConfig struct {
	Backend         string `yaml:"backend" validate:"oneof=openai ollama anthropic"`
	APIKey          string `yaml:"api_key,omitempty"`
	BaseURL         string `yaml:"base_url,omitempty" validate:"omitempty,url"`
	ClarifierModel  string `yaml:"clarifier_model" validate:"required"`
	PlannerModel    string `yaml:"planner_model" validate:"required"`
	SummarizerModel string `yaml:"summarizer_model" validate:"required"`
}

// PipelineConfig tunes the query pipeline.
type PipelineConfig struct {
	MaxQueryLength      int           `yaml:"max_query_length" validate:"gt=0"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" validate:"gt=0,lte=1"`
	VerifierTolerance   float64       `yaml:"verifier_tolerance" validate:"gt=0,lt=1"`
	StepTimeout         time.Duration `yaml:"step_timeout" validate:"gt=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int      `yaml:"port" validate:"min=1,max=65535"`
	CORSOrigins        []string `yaml:"cors_origins"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute" validate:"gt=0"`
}

// TelemetryConfig configures OpenTelemetry export. An empty OTLPEndpoint
// disables trace export unless Stdout is set.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" validate:"required"`
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	Stdout       bool   `yaml:"stdout"`
}

// ArchiveConfig configures the InfluxDB fact archive. Empty URL disables it.
type ArchiveConfig struct {
	InfluxURL    string `yaml:"influx_url,omitempty" validate:"omitempty,url"`
	InfluxToken  string `yaml:"influx_token,omitempty" validate:"required_with=InfluxURL"`
	InfluxOrg    string `yaml:"influx_org,omitempty" validate:"required_with=InfluxURL"`
	InfluxBucket string `yaml:"influx_bucket,omitempty" validate:"required_with=InfluxURL"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// Enabled reports whether the archive should be wired.
func (a ArchiveConfig) Enabled() bool { return a.InfluxURL != "" }

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		EDGAR: EDGARConfig{
			Identity:             "SEC-LLM POC dev@example.com",
			DataURL:              "https://data.sec.gov",
			TickersURL:           "https://www.sec.gov/files/company_tickers.json",
			RequestsPerSecond:    10,
			MaxRetries:           3,
			RetryInitialInterval: 500 * time.Millisecond,
			Timeout:              30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     15 * time.Minute,
		},
		LLM: LLMConfig{
			Backend:         "openai",
			ClarifierModel:  "gpt-4o",
			PlannerModel:    "gpt-4o",
			SummarizerModel: "gpt-4o-mini",
		},
		Pipeline: PipelineConfig{
			MaxQueryLength:      2000,
			ConfidenceThreshold: 0.85,
			VerifierTolerance:   0.0001,
			StepTimeout:         30 * time.Second,
		},
		Server: ServerConfig{
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000"},
			RateLimitPerMinute: 20,
		},
		Telemetry: TelemetryConfig{ServiceName: "secllm"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

var validate = validator.New()

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads defaults, then path when non-empty, then the process
// environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an injectable environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read the config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse the config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories. An existing file is left untouched and reported.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
