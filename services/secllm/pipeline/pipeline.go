// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs a user question end to end:
//
//	sanitize -> scope check -> clarify -> plan -> execute -> summarize -> verify
//
// and assembles the AnalysisResponse with raw data, computations,
// citations, a chart payload and the verifier's guardrail block.
//
// Only the executor touches numbers. The summarizer narrates them and the
// verifier flags any number in the narrative that is not in the truth set.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/secllm/services/secllm/agents"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/executor"
	"github.com/AleutianAI/secllm/services/secllm/plan"
	"github.com/AleutianAI/secllm/services/secllm/verify"
)

var tracer = otel.Tracer("secllm.pipeline")

// Clarifier extracts structured intent.
type Clarifier interface {
	Clarify(ctx context.Context, q datatypes.UserQuery) (*datatypes.ClarificationResponse, error)
}

// Planner produces a validated plan.
type Planner interface {
	Plan(ctx context.Context, q *datatypes.ClarifiedQuery) (*plan.ExecutionPlan, error)
}

// Summarizer narrates executor output.
type Summarizer interface {
	Summarize(ctx context.Context, in agents.SummaryInput) (string, error)
}

// Runner executes a plan.
type Runner interface {
	Execute(ctx context.Context, p *plan.ExecutionPlan) (*executor.Result, error)
}

// Pipeline wires the stages together. It holds no per-request state and
// is safe for concurrent use when its stages are.
type Pipeline struct {
	clarifier  Clarifier
	planner    Planner
	summarizer Summarizer
	runner     Runner
	verifier   *verify.Verifier
	maxQuery   int
	logger     *slog.Logger
}

// Config holds the stages and settings for New.
type Config struct {
	Clarifier  Clarifier
	Planner    Planner
	Summarizer Summarizer
	Runner     Runner

	// Verifier defaults to verify.New().
	Verifier *verify.Verifier

	// MaxQueryLength defaults to DefaultMaxQueryLength.
	MaxQueryLength int

	Logger *slog.Logger
}

// New validates cfg and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Clarifier == nil:
		return nil, errors.New("pipeline requires a clarifier")
	case cfg.Planner == nil:
		return nil, errors.New("pipeline requires a planner")
	case cfg.Summarizer == nil:
		return nil, errors.New("pipeline requires a summarizer")
	case cfg.Runner == nil:
		return nil, errors.New("pipeline requires a runner")
	}
	p := &Pipeline{
		clarifier:  cfg.Clarifier,
		planner:    cfg.Planner,
		summarizer: cfg.Summarizer,
		runner:     cfg.Runner,
		verifier:   cfg.Verifier,
		maxQuery:   cfg.MaxQueryLength,
		logger:     cfg.Logger,
	}
	if p.verifier == nil {
		p.verifier = verify.New()
	}
	if p.maxQuery <= 0 {
		p.maxQuery = DefaultMaxQueryLength
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Process answers one user query.
//
// # Description
//
// A clarification request is a successful response with
// NeedsClarification set. Steps that fail inside the plan are reported in
// Steps and narrated; only a run where no step succeeded is an error.
//
// # Outputs
//
//   - error: ErrEmptyQuery, a *ScopeError, a *plan.ValidationError, a
//     *NoDataError, an llm.ErrProvider failure, or the context error.
func (p *Pipeline) Process(ctx context.Context, q datatypes.UserQuery) (*datatypes.AnalysisResponse, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Process")
	defer span.End()

	resp, err := p.process(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("needs_clarification", resp.NeedsClarification),
		attribute.Int("unverified_numbers", len(resp.Guardrails.UnverifiedNumbers)),
	)
	return resp, nil
}

func (p *Pipeline) process(ctx context.Context, q datatypes.UserQuery) (*datatypes.AnalysisResponse, error) {
	q.Message = Sanitize(q.Message, p.maxQuery)
	if q.Message == "" {
		return nil, ErrEmptyQuery
	}
	if err := CheckScope(q.Message); err != nil {
		return nil, err
	}

	clar, err := p.clarifier.Clarify(ctx, q)
	if err != nil {
		return nil, err
	}
	if clar.NeedsClarification || clar.ClarifiedQuery == nil {
		p.logger.Info("query needs clarification", "confidence", clar.Confidence)
		return clarificationResponse(clar), nil
	}
	cq := clar.ClarifiedQuery
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("ticker", cq.Ticker),
		attribute.String("query_type", string(cq.QueryType)),
	)

	ep, err := p.planner.Plan(ctx, cq)
	if err != nil {
		return nil, err
	}

	res, err := p.runner.Execute(ctx, ep)
	if err != nil {
		return nil, err
	}
	if !res.AnySucceeded() {
		return nil, noData(res)
	}

	resp := assemble(res)
	metric := datatypes.QueryMetricRevenue
	if len(cq.Metrics) > 0 {
		metric = cq.Metrics[0]
	}
	resp.Visualization = Visualization(cq.QueryType, metric, res)

	summary, err := p.summarizer.Summarize(ctx, agents.SummaryInput{
		Query:        cq,
		RawData:      resp.RawData,
		Computations: resp.Computations,
		Failures:     unsuccessful(resp.Steps),
	})
	if err != nil {
		return nil, err
	}
	resp.Summary = summary
	resp.Guardrails = p.guardrails(summary, res, cq.Ticker)

	p.logger.Info("query answered",
		"run_id", res.RunID,
		"ticker", cq.Ticker,
		"steps", len(res.Outcomes),
		"failed", res.Count(executor.StatusFailed),
		"unverified", len(resp.Guardrails.UnverifiedNumbers),
	)
	return resp, nil
}

// ExecutePlan runs a caller-supplied plan and, when narrative is non-empty,
// verifies it against the run's truth set. Clarification, planning and
// summarization are skipped.
func (p *Pipeline) ExecutePlan(ctx context.Context, raw plan.RawPlan, narrative string) (*datatypes.AnalysisResponse, error) {
	ctx, span := tracer.Start(ctx, "pipeline.ExecutePlan")
	defer span.End()

	ep, err := plan.Parse(raw)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res, err := p.runner.Execute(ctx, ep)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	resp := assemble(res)
	resp.Summary = narrative
	var ignore []string
	for _, s := range res.Statements() {
		ignore = append(ignore, s.Ticker)
	}
	resp.Guardrails = p.guardrails(narrative, res, ignore...)
	return resp, nil
}

func (p *Pipeline) guardrails(narrative string, res *executor.Result, ignore ...string) datatypes.GuardrailInfo {
	rep := p.verifier.Verify(narrative, res.Truth, ignore...)
	if len(rep.Unverified) > 0 {
		p.logger.Warn("narrative contains unverified numbers",
			"run_id", res.RunID, "numbers", rep.Unverified, "llm_computed_math", rep.LLMComputedMath)
	}
	return datatypes.GuardrailInfo{
		LLMComputedMath:   rep.LLMComputedMath,
		UnverifiedNumbers: rep.Unverified,
		NumbersChecked:    rep.Checked,
	}
}

func assemble(res *executor.Result) *datatypes.AnalysisResponse {
	return &datatypes.AnalysisResponse{
		RunID:        res.RunID,
		RawData:      RawData(res),
		Computations: Computations(res),
		Citations:    Citations(res),
		Steps:        res.Reports(),
		Guardrails:   datatypes.GuardrailInfo{UnverifiedNumbers: []string{}},
	}
}

func clarificationResponse(c *datatypes.ClarificationResponse) *datatypes.AnalysisResponse {
	return &datatypes.AnalysisResponse{
		RawData:            []map[string]any{},
		Computations:       []map[string]any{},
		Citations:          []datatypes.SourceCitation{},
		Guardrails:         datatypes.GuardrailInfo{UnverifiedNumbers: []string{}},
		NeedsClarification: true,
		FollowUpQuestion:   c.FollowUpQuestion,
	}
}

func unsuccessful(reports []datatypes.StepReport) []datatypes.StepReport {
	var out []datatypes.StepReport
	for _, r := range reports {
		if r.Status != string(executor.StatusSucceeded) {
			out = append(out, r)
		}
	}
	return out
}

func noData(res *executor.Result) error {
	e := &NoDataError{RunID: res.RunID}
	if f := res.Failures(); len(f) > 0 {
		e.Cause = f[0]
	}
	return fmt.Errorf("run %s: %w", res.RunID, e)
}
