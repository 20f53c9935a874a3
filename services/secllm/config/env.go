// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type envBinding struct {
	name  string
	apply func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

// seconds parses a plain integer number of seconds.
func seconds(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = time.Duration(n) * time.Second
		return nil
	}
}

// envBindings maps SEC_LLM_<name> to a field. OPENAI_API_KEY and
// CLARIFICATION_MODEL keep the names earlier deployments used.
var envBindings = []envBinding{
	{"EDGAR_IDENTITY", str(func(c *Config) *string { return &c.EDGAR.Identity })},
	{"EDGAR_DATA_URL", str(func(c *Config) *string { return &c.EDGAR.DataURL })},
	{"EDGAR_TICKERS_URL", str(func(c *Config) *string { return &c.EDGAR.TickersURL })},
	{"EDGAR_REQUESTS_PER_SECOND", float(func(c *Config) *float64 { return &c.EDGAR.RequestsPerSecond })},
	{"EDGAR_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.EDGAR.Timeout })},

	{"CACHE_BACKEND", str(func(c *Config) *string { return &c.Cache.Backend })},
	{"SEC_CACHE_TTL_SECONDS", seconds(func(c *Config) *time.Duration { return &c.Cache.TTL })},
	{"BADGER_DIR", str(func(c *Config) *string { return &c.Cache.BadgerDir })},

	{"LLM_BACKEND", str(func(c *Config) *string { return &c.LLM.Backend })},
	{"LLM_API_KEY", str(func(c *Config) *string { return &c.LLM.APIKey })},
	{"OPENAI_API_KEY", str(func(c *Config) *string { return &c.LLM.APIKey })},
	{"LLM_BASE_URL", str(func(c *Config) *string { return &c.LLM.BaseURL })},
	{"CLARIFICATION_MODEL", str(func(c *Config) *string { return &c.LLM.ClarifierModel })},
	{"PLANNER_MODEL", str(func(c *Config) *string { return &c.LLM.PlannerModel })},
	{"SUMMARIZER_MODEL", str(func(c *Config) *string { return &c.LLM.SummarizerModel })},

	{"MAX_QUERY_LENGTH", integer(func(c *Config) *int { return &c.Pipeline.MaxQueryLength })},
	{"CONFIDENCE_THRESHOLD", float(func(c *Config) *float64 { return &c.Pipeline.ConfidenceThreshold })},
	{"VERIFIER_TOLERANCE", float(func(c *Config) *float64 { return &c.Pipeline.VerifierTolerance })},
	{"STEP_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Pipeline.StepTimeout })},

	{"PORT", integer(func(c *Config) *int { return &c.Server.Port })},
	{"RATE_LIMIT_PER_MINUTE", integer(func(c *Config) *int { return &c.Server.RateLimitPerMinute })},
	{"CORS_ORIGINS", func(c *Config, v string) error {
		c.Server.CORSOrigins = splitList(v)
		return nil
	}},

	{"OTLP_ENDPOINT", str(func(c *Config) *string { return &c.Telemetry.OTLPEndpoint })},
	{"TELEMETRY_STDOUT", boolean(func(c *Config) *bool { return &c.Telemetry.Stdout })},

	{"INFLUX_URL", str(func(c *Config) *string { return &c.Archive.InfluxURL })},
	{"INFLUX_TOKEN", str(func(c *Config) *string { return &c.Archive.InfluxToken })},
	{"INFLUX_ORG", str(func(c *Config) *string { return &c.Archive.InfluxOrg })},
	{"INFLUX_BUCKET", str(func(c *Config) *string { return &c.Archive.InfluxBucket })},

	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_DIR", str(func(c *Config) *string { return &c.Logging.Dir })},
	{"LOG_JSON", boolean(func(c *Config) *bool { return &c.Logging.JSON })},
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.name)
		if !ok {
			continue
		}
		if err := b.apply(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("environment variable %s%s: %w", EnvPrefix, b.name, err)
		}
	}
	return nil
}

// splitList accepts a comma-separated list or a JSON-style ["a","b"] array.
func splitList(v string) []string {
	v = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(v), "["), "]")
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
