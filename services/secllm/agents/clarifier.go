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

	"github.com/AleutianAI/secllm/pkg/validation"
	"github.com/AleutianAI/secllm/services/llm"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

// DefaultConfidenceThreshold is the confidence below which the clarifier
// asks a follow-up question instead of proceeding.
const DefaultConfidenceThreshold = 0.85

// DefaultFollowUp is asked when the model wants clarification but gave no
// question, or when its answer is unusable.
const DefaultFollowUp = "Could you provide more details? I need a specific ticker, metric, and time period to look up financial data."

var errIncompleteIntent = errors.New("incomplete intent")

// clarification is the structured output requested from the model.
type clarification struct {
	NeedsClarification bool           `json:"needs_clarification"`
	Confidence         float64        `json:"confidence" description:"between 0 and 1"`
	FollowUpQuestion   string         `json:"follow_up_question"`
	ClarifiedQuery     clarifiedQuery `json:"clarified_query"`
}

type clarifiedQuery struct {
	Ticker    string                   `json:"ticker"`
	QueryType string                   `json:"query_type" enum:"direct_retrieval,growth_comparison,time_series"`
	Metrics   []string                 `json:"metrics"`
	Periods   []datatypes.FiscalPeriod `json:"periods"`
}

// Clarifier extracts ticker, metrics and periods from a user message.
type Clarifier struct {
	client    llm.LLMClient
	threshold float64
	logger    *slog.Logger
}

// ClarifierOption configures a Clarifier.
type ClarifierOption func(*Clarifier)

// WithConfidenceThreshold overrides DefaultConfidenceThreshold.
func WithConfidenceThreshold(t float64) ClarifierOption {
	return func(c *Clarifier) {
		if t > 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// WithClarifierLogger sets the logger.
func WithClarifierLogger(l *slog.Logger) ClarifierOption {
	return func(c *Clarifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClarifier creates a Clarifier over client.
func NewClarifier(client llm.LLMClient, opts ...ClarifierOption) (*Clarifier, error) {
	if client == nil {
		return nil, errors.New("clarifier requires an llm client")
	}
	c := &Clarifier{client: client, threshold: DefaultConfidenceThreshold, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Clarify asks the model for structured intent.
//
// # Description
//
// The response needs clarification when the model says so, when its
// confidence is below the threshold, or when the intent it returned cannot
// drive a plan (invalid ticker, unknown metric, no valid period). In those
// cases ClarifiedQuery is nil and FollowUpQuestion is set.
//
// # Outputs
//
//   - error: wraps llm.ErrProvider when the model call fails.
func (c *Clarifier) Clarify(ctx context.Context, q datatypes.UserQuery) (*datatypes.ClarificationResponse, error) {
	msgs := make([]llm.Message, 0, len(q.ConversationHistory)+2)
	msgs = append(msgs, llm.System(clarifierPrompt))
	for _, turn := range q.ConversationHistory {
		role := llm.RoleUser
		if turn.Role == string(llm.RoleAssistant) {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, llm.User(q.Message))

	var out clarification
	if err := c.client.GenerateStructured(ctx, msgs, llm.Schema{Name: "clarification", Target: &out}, llm.Temperature(0)); err != nil {
		return nil, fmt.Errorf("clarification agent: %w", err)
	}

	resp := &datatypes.ClarificationResponse{
		NeedsClarification: out.NeedsClarification,
		Confidence:         min(max(out.Confidence, 0), 1),
		FollowUpQuestion:   out.FollowUpQuestion,
	}
	if !resp.NeedsClarification {
		cq, err := out.ClarifiedQuery.toDomain(q.Message)
		switch {
		case err != nil:
			c.logger.Info("clarified intent unusable", "error", err)
			resp.NeedsClarification = true
		case resp.Confidence < c.threshold:
			c.logger.Info("clarification confidence below threshold",
				"confidence", resp.Confidence, "threshold", c.threshold)
			resp.NeedsClarification = true
		default:
			resp.ClarifiedQuery = cq
		}
	}
	if resp.NeedsClarification && resp.FollowUpQuestion == "" {
		resp.FollowUpQuestion = DefaultFollowUp
	}
	return resp, nil
}

func (w clarifiedQuery) toDomain(original string) (*datatypes.ClarifiedQuery, error) {
	ticker, err := validation.SanitizeTicker(w.Ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errIncompleteIntent, err)
	}

	qt := datatypes.QueryType(w.QueryType)
	switch qt {
	case datatypes.QueryTypeDirectRetrieval, datatypes.QueryTypeGrowthComparison, datatypes.QueryTypeTimeSeries:
	default:
		return nil, fmt.Errorf("%w: query type %q", errIncompleteIntent, w.QueryType)
	}

	metrics := make([]datatypes.QueryMetric, 0, len(w.Metrics))
	for _, m := range w.Metrics {
		qm := datatypes.QueryMetric(m)
		switch qm {
		case datatypes.QueryMetricRevenue, datatypes.QueryMetricNetIncome, datatypes.QueryMetricEPS,
			datatypes.QueryMetricGrossMargin, datatypes.QueryMetricOperatingIncome:
			metrics = append(metrics, qm)
		default:
			return nil, fmt.Errorf("%w: metric %q", errIncompleteIntent, m)
		}
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("%w: no metric", errIncompleteIntent)
	}

	if len(w.Periods) == 0 {
		return nil, fmt.Errorf("%w: no period", errIncompleteIntent)
	}
	for _, p := range w.Periods {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", errIncompleteIntent, err)
		}
	}

	return &datatypes.ClarifiedQuery{
		Ticker:          ticker,
		QueryType:       qt,
		Metrics:         metrics,
		Periods:         w.Periods,
		OriginalMessage: original,
	}, nil
}
