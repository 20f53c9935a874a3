// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor runs validated execution plans.
//
// # Description
//
// Steps run one at a time in the plan's topological order. Data steps
// call the gateway and may block on network I/O; compute steps call the
// compute registry and never block. A failed step is terminal for every
// step that transitively depends on it, and those dependents are
// reported as skipped without being invoked. Steps with no dependency
// relation to the failure still run.
//
// Every numeric output field a tool marks as truth is recorded in the
// run's TruthSet with the id of the step that produced it.
//
// # Thread Safety
//
// An Executor is safe for concurrent use. Each Execute call owns its
// ExecutionContext and TruthSet; nothing is shared between runs.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/secllm/services/secllm/compute"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

var (
	tracer = otel.Tracer("secllm.executor")
	meter  = otel.Meter("secllm.executor")
)

// DefaultStepTimeout bounds a single data step.
const DefaultStepTimeout = 30 * time.Second

// Executor runs plans against a data source and the compute registry.
type Executor struct {
	source      edgar.Source
	registry    compute.Registry
	logger      *slog.Logger
	stepTimeout time.Duration

	// Metrics (initialized lazily)
	metricsOnce  sync.Once
	stepLatency  metric.Float64Histogram
	stepOutcomes metric.Int64Counter
	planLatency  metric.Float64Histogram
}

// Option configures an Executor.
type Option func(*Executor)

// WithStepTimeout overrides DefaultStepTimeout. Non-positive values are
// ignored.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.stepTimeout = d
		}
	}
}

// NewExecutor creates an executor.
//
// Inputs:
//
//	source - Data gateway used by data tools. Must not be nil.
//	logger - Logger for execution logs. If nil, uses slog.Default().
//
// Outputs:
//
//	*Executor - The configured executor.
//	error - ErrNilSource when source is nil.
func NewExecutor(source edgar.Source, logger *slog.Logger, opts ...Option) (*Executor, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		source:      source,
		logger:      logger,
		stepTimeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// initMetrics lazily initializes metrics. Failures are logged and the
// executor runs without the affected instrument.
func (e *Executor) initMetrics() {
	e.metricsOnce.Do(func() {
		var initErrors []string
		var err error

		e.stepLatency, err = meter.Float64Histogram("secllm_step_duration_seconds",
			metric.WithDescription("Time spent executing each plan step"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_latency: "+err.Error())
		}

		e.stepOutcomes, err = meter.Int64Counter("secllm_step_outcomes_total",
			metric.WithDescription("Plan steps by tool and status"),
		)
		if err != nil {
			initErrors = append(initErrors, "step_outcomes: "+err.Error())
		}

		e.planLatency, err = meter.Float64Histogram("secllm_plan_duration_seconds",
			metric.WithDescription("Total plan execution time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "plan_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			e.logger.Error("failed to initialize some executor metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Execute runs p to completion.
//
// Description:
//
//	Steps run sequentially in p.Order(). Before each step the executor
//	checks the step's dependencies; if any did not succeed the step is
//	skipped and attributed to the failed ancestor. Otherwise references
//	are resolved from the ExecutionContext and the tool is dispatched.
//
// Inputs:
//
//	ctx - Cancels the run. In-flight data fetches observe it.
//	p - A plan produced by plan.Parse.
//
// Outputs:
//
//	*Result - Per-step outcomes and the frozen TruthSet. Step failures
//	  are data in the result, not errors.
//	error - ErrNilPlan, or the wrapped context error when the run was
//	  cancelled. A cancelled run returns no partial result.
func (e *Executor) Execute(ctx context.Context, p *plan.ExecutionPlan) (*Result, error) {
	if p == nil {
		return nil, ErrNilPlan
	}
	e.initMetrics()

	runID := uuid.NewString()[:12]
	ctx, span := tracer.Start(ctx, "executor.Execute",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("plan.steps", p.Len()),
		),
	)
	defer span.End()

	start := time.Now()
	e.logger.Info("plan started",
		slog.String("run_id", runID),
		slog.Int("steps", p.Len()),
	)

	ec := newExecutionContext()
	truth := NewTruthSet()
	result := &Result{RunID: runID, Truth: truth, byID: make(map[int]int, p.Len())}

	for _, step := range p.Steps() {
		if err := ctx.Err(); err != nil {
			return nil, e.cancelled(span, runID, err)
		}

		if blocker, blocked := ec.blockedBy(p.Dependencies(step.ID)); blocked {
			ec.skip(step.ID, blocker)
			result.add(Outcome{StepID: step.ID, Tool: step.Tool, Status: StatusSkipped, SkippedBy: blocker})
			e.countOutcome(ctx, step.Tool, StatusSkipped)
			e.logger.Info("step skipped",
				slog.String("run_id", runID),
				slog.Int("step", step.ID),
				slog.Int("skipped_by", blocker),
			)
			continue
		}

		stepStart := time.Now()
		out, err := e.runStep(ctx, ec, step)
		dur := time.Since(stepStart)
		if e.stepLatency != nil {
			e.stepLatency.Record(ctx, dur.Seconds(),
				metric.WithAttributes(attribute.String("tool", string(step.Tool))),
			)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, e.cancelled(span, runID, ctxErr)
			}
			se := newStepError(step, err)
			ec.fail(step.ID)
			result.add(Outcome{StepID: step.ID, Tool: step.Tool, Status: StatusFailed, Err: se, Duration: dur})
			e.countOutcome(ctx, step.Tool, StatusFailed)
			e.logger.Warn("step failed",
				slog.String("run_id", runID),
				slog.Int("step", step.ID),
				slog.String("tool", string(step.Tool)),
				slog.String("kind", string(se.Kind)),
				slog.String("error", err.Error()),
			)
			continue
		}

		ec.store(step.ID, out)
		if err := recordTruth(truth, step, out); err != nil {
			// The set is only frozen below, so this is a programming error.
			return nil, err
		}
		result.add(Outcome{StepID: step.ID, Tool: step.Tool, Status: StatusSucceeded, Output: out, Duration: dur})
		e.countOutcome(ctx, step.Tool, StatusSucceeded)
		e.logger.Debug("step succeeded",
			slog.String("run_id", runID),
			slog.Int("step", step.ID),
			slog.Duration("duration", dur),
		)
	}

	truth.Freeze()
	result.Duration = time.Since(start)
	if e.planLatency != nil {
		e.planLatency.Record(ctx, result.Duration.Seconds())
	}

	span.SetAttributes(
		attribute.Int("plan.succeeded", result.Count(StatusSucceeded)),
		attribute.Int("plan.failed", result.Count(StatusFailed)),
		attribute.Int("plan.skipped", result.Count(StatusSkipped)),
		attribute.Int("truth.facts", truth.Len()),
	)
	if result.Count(StatusFailed) > 0 {
		span.SetStatus(codes.Error, "partial failure")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	e.logger.Info("plan completed",
		slog.String("run_id", runID),
		slog.Duration("duration", result.Duration),
		slog.Int("succeeded", result.Count(StatusSucceeded)),
		slog.Int("failed", result.Count(StatusFailed)),
		slog.Int("skipped", result.Count(StatusSkipped)),
	)
	return result, nil
}

func (e *Executor) cancelled(span trace.Span, runID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "context canceled")
	e.logger.Info("plan cancelled", slog.String("run_id", runID), slog.String("error", err.Error()))
	return fmt.Errorf("plan run %s cancelled: %w", runID, err)
}

func (e *Executor) countOutcome(ctx context.Context, tool plan.ToolName, status Status) {
	if e.stepOutcomes == nil {
		return
	}
	e.stepOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", string(tool)),
		attribute.String("status", string(status)),
	))
}

// runStep resolves a step's arguments and dispatches its tool.
func (e *Executor) runStep(ctx context.Context, ec *ExecutionContext, step plan.Step) (Output, error) {
	ctx, span := tracer.Start(ctx, "executor.Step",
		trace.WithAttributes(
			attribute.Int("step.id", step.ID),
			attribute.String("step.tool", string(step.Tool)),
			attribute.String("step.kind", step.Tool.Kind().String()),
		),
	)
	defer span.End()

	args, err := ec.resolveArgs(step)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var out Output
	switch step.Tool.Kind() {
	case plan.KindData:
		out, err = e.runDataStep(ctx, step, args)
	case plan.KindCompute:
		out, err = e.runComputeStep(step, args)
	default:
		err = fmt.Errorf("%w: tool %s has no kind", plan.ErrUnknownTool, step.Tool)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out, nil
}

func (e *Executor) runDataStep(ctx context.Context, step plan.Step, args resolvedArgs) (Output, error) {
	req, err := statementRequest(args)
	if err != nil {
		return nil, err
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	stmt, err := e.source.IncomeStatement(stepCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrStepTimeout, e.stepTimeout, err)
		}
		return nil, err
	}
	return StatementOutput{Statement: stmt}, nil
}

func (e *Executor) runComputeStep(step plan.Step, args resolvedArgs) (Output, error) {
	fn, ok := step.Tool.Function()
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a compute tool", plan.ErrUnknownTool, step.Tool)
	}
	operands, err := bindOperands(step.Tool, args)
	if err != nil {
		return nil, err
	}
	res, err := e.registry.Invoke(fn, operands)
	if err != nil {
		return nil, err
	}
	return ComputeOutput{ToolName: step.Tool, Result: res}, nil
}

// recordTruth merges a step's truth fields into the set.
func recordTruth(truth *TruthSet, step plan.Step, out Output) error {
	for _, f := range step.Tool.Outputs() {
		if !f.Truth || f.Type != plan.FieldNumber {
			continue
		}
		v, ok := out.Number(f.Name)
		if !ok || v == nil {
			continue
		}
		if err := truth.Add(Fact{StepID: step.ID, Field: f.Name, Value: *v}); err != nil {
			return err
		}
	}
	// Aggregation inputs are narrated too ("Q1 revenue of ...").
	if co, ok := out.(ComputeOutput); ok {
		if agg, ok := co.Result.(compute.AggregationResult); ok {
			for _, v := range agg.Values {
				if err := truth.Add(Fact{StepID: step.ID, Field: "values", Value: v, Kind: FactAmount}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
