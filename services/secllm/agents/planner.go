// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/secllm/services/llm"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// Planner asks the model for an execution plan and validates it.
type Planner struct {
	client llm.LLMClient
	logger *slog.Logger
}

// NewPlanner creates a Planner over client. A nil logger uses slog.Default.
func NewPlanner(client llm.LLMClient, logger *slog.Logger) (*Planner, error) {
	if client == nil {
		return nil, errors.New("planner requires an llm client")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{client: client, logger: logger}, nil
}

// Plan returns a validated plan for q.
//
// A plan the model gets wrong (unknown tool, bad reference, cycle) is
// returned as the *plan.ValidationError from plan.Parse, so callers can
// distinguish it from a provider failure.
func (p *Planner) Plan(ctx context.Context, q *datatypes.ClarifiedQuery) (*plan.ExecutionPlan, error) {
	if q == nil {
		return nil, errors.New("planner requires a clarified query")
	}
	msgs := []llm.Message{llm.System(plannerPrompt), llm.User(planRequest(q))}

	var raw plan.RawPlan
	if err := p.client.GenerateStructured(ctx, msgs, llm.Schema{Name: "execution_plan", Target: &raw}, llm.Temperature(0)); err != nil {
		return nil, fmt.Errorf("planner agent: %w", err)
	}

	ep, err := plan.Parse(raw)
	if err != nil {
		p.logger.Warn("planner proposed an invalid plan", "error", err, "steps", len(raw.Steps))
		return nil, fmt.Errorf("planner agent: %w", err)
	}
	p.logger.Info("execution plan ready", "steps", ep.Len(), "order", ep.Order(), "reasoning", ep.Reasoning())
	return ep, nil
}

func planRequest(q *datatypes.ClarifiedQuery) string {
	metrics := make([]string, len(q.Metrics))
	for i, m := range q.Metrics {
		metrics[i] = string(m)
	}
	periods := make([]string, len(q.Periods))
	for i, per := range q.Periods {
		periods[i] = fmt.Sprintf("%s (%s)", per.Label(), per.FilingType())
	}
	return fmt.Sprintf("Ticker: %s\nQuery type: %s\nMetrics: %s\nPeriods: %s\nOriginal: %s",
		q.Ticker, q.QueryType, strings.Join(metrics, ", "), strings.Join(periods, ", "), q.OriginalMessage)
}
