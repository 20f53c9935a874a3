// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/secllm/services/llm"
	"github.com/AleutianAI/secllm/services/secllm/agents"
	"github.com/AleutianAI/secllm/services/secllm/cache"
	"github.com/AleutianAI/secllm/services/secllm/config"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/executor"
	"github.com/AleutianAI/secllm/services/secllm/pipeline"
	badgerstore "github.com/AleutianAI/secllm/services/secllm/storage/badger"
	"github.com/AleutianAI/secllm/services/secllm/verify"
)

// statementCachePrefix namespaces statement entries in a shared store.
const statementCachePrefix = "stmt:"

// components is everything a command needs to answer queries.
type components struct {
	Pipeline *pipeline.Pipeline
	Gateway  *edgar.Gateway

	closers []func() error
}

// Close releases stores and clients in reverse construction order.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

// llmFactory builds one client per model name. Tests replace it.
type llmFactory func(cfg config.LLMConfig, model string, logger *slog.Logger) (llm.LLMClient, error)

// newLLMClient builds a client for the configured backend.
func newLLMClient(cfg config.LLMConfig, model string, logger *slog.Logger) (llm.LLMClient, error) {
	switch cfg.Backend {
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.APIKey, Model: model, BaseURL: cfg.BaseURL}, logger)
	case "ollama":
		return llm.NewOllamaClient(cfg.BaseURL, model, logger)
	case "anthropic":
		return llm.NewAnthropicClient(cfg.APIKey, cfg.BaseURL, model, logger)
	}
	return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
}

// buildComponents assembles the pipeline from configuration:
//
//	EDGAR client ─► Gateway (statement cache, archive) ─► Executor ─┐
//	LLM clients ─► Clarifier, Planner, Summarizer ──────────────────┼─► Pipeline
//	Verifier ───────────────────────────────────────────────────────┘
func buildComponents(cfg *config.Config, newClient llmFactory, logger *slog.Logger) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	client, err := edgar.NewClient(edgar.ClientConfig{
		UserAgent:            cfg.EDGAR.Identity,
		DataURL:              cfg.EDGAR.DataURL,
		TickersURL:           cfg.EDGAR.TickersURL,
		RequestsPerSecond:    cfg.EDGAR.RequestsPerSecond,
		MaxRetries:           cfg.EDGAR.MaxRetries,
		RetryInitialInterval: cfg.EDGAR.RetryInitialInterval,
		Timeout:              cfg.EDGAR.Timeout,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("edgar client: %w", err)
	}

	statements, err := c.statementCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	opts := []edgar.Option{edgar.WithStatementCache(statements), edgar.WithLogger(logger)}
	if cfg.Archive.Enabled() {
		archive, influx := edgar.DialInfluxArchive(cfg.Archive.InfluxURL, cfg.Archive.InfluxToken, cfg.Archive.InfluxOrg, cfg.Archive.InfluxBucket)
		c.closers = append(c.closers, func() error { influx.Close(); return nil })
		opts = append(opts, edgar.WithArchive(archive))
		logger.Info("Archiving statements to InfluxDB", "bucket", cfg.Archive.InfluxBucket)
	}
	c.Gateway = edgar.NewGateway(client, opts...)

	exec, err := executor.NewExecutor(c.Gateway, logger, executor.WithStepTimeout(cfg.Pipeline.StepTimeout))
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	clarifierLLM, err := newClient(cfg.LLM, cfg.LLM.ClarifierModel, logger)
	if err != nil {
		return nil, fmt.Errorf("clarifier llm: %w", err)
	}
	plannerLLM, err := newClient(cfg.LLM, cfg.LLM.PlannerModel, logger)
	if err != nil {
		return nil, fmt.Errorf("planner llm: %w", err)
	}
	summarizerLLM, err := newClient(cfg.LLM, cfg.LLM.SummarizerModel, logger)
	if err != nil {
		return nil, fmt.Errorf("summarizer llm: %w", err)
	}

	clarifier, err := agents.NewClarifier(clarifierLLM,
		agents.WithConfidenceThreshold(cfg.Pipeline.ConfidenceThreshold),
		agents.WithClarifierLogger(logger))
	if err != nil {
		return nil, err
	}
	planner, err := agents.NewPlanner(plannerLLM, logger)
	if err != nil {
		return nil, err
	}
	summarizer, err := agents.NewSummarizer(summarizerLLM)
	if err != nil {
		return nil, err
	}

	c.Pipeline, err = pipeline.New(pipeline.Config{
		Clarifier:      clarifier,
		Planner:        planner,
		Summarizer:     summarizer,
		Runner:         exec,
		Verifier:       verify.New(verify.WithRelTolerance(cfg.Pipeline.VerifierTolerance)),
		MaxQueryLength: cfg.Pipeline.MaxQueryLength,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// statementCache opens the configured statement cache. A badger cache
// registers its store for Close.
func (c *components) statementCache(cfg config.CacheConfig, logger *slog.Logger) (cache.Cache[*datatypes.IncomeStatement], error) {
	if cfg.Backend != "badger" {
		return cache.NewMemory[*datatypes.IncomeStatement](cache.WithTTL(cfg.TTL)), nil
	}

	storeCfg := badgerstore.DefaultConfig(cfg.BadgerDir)
	storeCfg.Logger = logger
	db, err := badgerstore.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("statement cache: %w", err)
	}
	c.closers = append(c.closers, db.Close)
	logger.Info("Using badger statement cache", "path", db.Path())
	return cache.NewBadger[*datatypes.IncomeStatement](db, statementCachePrefix, cfg.TTL, logger), nil
}
