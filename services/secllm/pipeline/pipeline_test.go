// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/secllm/services/llm"
	"github.com/AleutianAI/secllm/services/secllm/agents"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/executor"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeSource struct {
	statements map[string]*datatypes.IncomeStatement
}

func newFakeSource() *fakeSource {
	return &fakeSource{statements: map[string]*datatypes.IncomeStatement{
		"AAPL:10-K:FY2023": {
			Ticker: "AAPL", CompanyName: "Apple Inc.", CIK: "0000320193",
			FilingType: datatypes.FilingType10K, FiscalPeriod: datatypes.FiscalPeriod{Year: 2023},
			FilingDate: "2023-11-03", PeriodEnd: "2023-09-30", AccessionNumber: "0000320193-23-000106",
			Revenue: datatypes.Float(383285000000), GrossProfit: datatypes.Float(169148000000),
		},
		"AAPL:10-K:FY2024": {
			Ticker: "AAPL", CompanyName: "Apple Inc.", CIK: "0000320193",
			FilingType: datatypes.FilingType10K, FiscalPeriod: datatypes.FiscalPeriod{Year: 2024},
			FilingDate: "2024-11-01", PeriodEnd: "2024-09-28", AccessionNumber: "0000320193-24-000123",
			Revenue: datatypes.Float(391035000000), GrossProfit: datatypes.Float(180683000000),
		},
	}}
}

func (f *fakeSource) IncomeStatement(_ context.Context, req edgar.Request) (*datatypes.IncomeStatement, error) {
	if req.Ticker == "ZZZZ" {
		return nil, fmt.Errorf("%w: %s", edgar.ErrCompanyNotFound, req.Ticker)
	}
	if s, ok := f.statements[req.Key()]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", edgar.ErrFilingNotFound, req.Key())
}

type fakeClarifier struct {
	resp  *datatypes.ClarificationResponse
	err   error
	calls int
	seen  string
}

func (f *fakeClarifier) Clarify(_ context.Context, q datatypes.UserQuery) (*datatypes.ClarificationResponse, error) {
	f.calls++
	f.seen = q.Message
	return f.resp, f.err
}

type fakePlanner struct {
	raw   plan.RawPlan
	err   error
	calls int
}

func (f *fakePlanner) Plan(_ context.Context, _ *datatypes.ClarifiedQuery) (*plan.ExecutionPlan, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return plan.Parse(f.raw)
}

type fakeSummarizer struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	input agents.SummaryInput
}

func (f *fakeSummarizer) Summarize(_ context.Context, in agents.SummaryInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.input = in
	return f.text, f.err
}

func fetch(id int, ticker, period string) plan.RawStep {
	return plan.RawStep{
		StepID: id,
		Tool:   "get_income_statement",
		Args: []plan.RawArg{
			{Name: "ticker", Value: plan.RawValue(ticker)},
			{Name: "fiscal_period", Value: plan.RawValue(period)},
		},
	}
}

func growthPlan(ticker, current, previous string) plan.RawPlan {
	return plan.RawPlan{Steps: []plan.RawStep{
		fetch(1, ticker, current),
		fetch(2, ticker, previous),
		{
			StepID: 3,
			Tool:   "compute_yoy_growth",
			Args: []plan.RawArg{
				{Name: "current", Value: "$step:1:revenue"},
				{Name: "previous", Value: "$step:2:revenue"},
				{Name: "metric_name", Value: "revenue"},
				{Name: "current_period", Value: plan.RawValue(current)},
				{Name: "previous_period", Value: plan.RawValue(previous)},
			},
			DependsOn: []int{1, 2},
		},
	}}
}

func appleClarified() *datatypes.ClarificationResponse {
	return &datatypes.ClarificationResponse{
		Confidence: 0.95,
		ClarifiedQuery: &datatypes.ClarifiedQuery{
			Ticker:          "AAPL",
			QueryType:       datatypes.QueryTypeGrowthComparison,
			Metrics:         []datatypes.QueryMetric{datatypes.QueryMetricRevenue},
			Periods:         []datatypes.FiscalPeriod{{Year: 2024}, {Year: 2023}},
			OriginalMessage: "How did Apple's revenue grow in FY2024?",
		},
	}
}

const groundedNarrative = "Apple's revenue grew 2.02% in FY2024, from $383.3 billion in FY2023 to $391.0 billion, per its 10-K filings."

type harness struct {
	clarifier  *fakeClarifier
	planner    *fakePlanner
	summarizer *fakeSummarizer
	pipeline   *Pipeline
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clarifier:  &fakeClarifier{resp: appleClarified()},
		planner:    &fakePlanner{raw: growthPlan("AAPL", "FY2024", "FY2023")},
		summarizer: &fakeSummarizer{text: groundedNarrative},
	}
	ex, err := executor.NewExecutor(newFakeSource(), nil)
	require.NoError(t, err)
	h.pipeline, err = New(Config{
		Clarifier:  h.clarifier,
		Planner:    h.planner,
		Summarizer: h.summarizer,
		Runner:     ex,
	})
	require.NoError(t, err)
	return h
}

func ask(msg string) datatypes.UserQuery { return datatypes.UserQuery{Message: msg} }

// =============================================================================
// Process
// =============================================================================

func TestProcess_AppleGrowthEndToEnd(t *testing.T) {
	h := newHarness(t)

	resp, err := h.pipeline.Process(context.Background(), ask("How did Apple's revenue grow in FY2024?"))
	require.NoError(t, err)

	assert.False(t, resp.NeedsClarification)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, groundedNarrative, resp.Summary)

	require.Len(t, resp.RawData, 2)
	assert.Equal(t, "FY2024", resp.RawData[0]["fiscal_period"])
	assert.Equal(t, 391035000000.0, resp.RawData[0]["revenue"])
	assert.Nil(t, resp.RawData[0]["net_income"])

	require.Len(t, resp.Computations, 1)
	c := resp.Computations[0]
	assert.Equal(t, 2.02, c["growth_percentage"])
	assert.Equal(t, "compute_yoy_growth", c["tool"])
	assert.Contains(t, c["formula"], "391,035,000,000.00")

	require.Len(t, resp.Citations, 2)
	assert.Equal(t, "FY2024", resp.Citations[0].FiscalPeriod)
	assert.Equal(t, "2024-11-01", resp.Citations[0].FilingDate)
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/320193/000032019324000123/0000320193-24-000123-index.htm", resp.Citations[0].URL)

	require.NotNil(t, resp.Visualization)
	assert.Equal(t, datatypes.ChartComparison, resp.Visualization.ChartType)
	assert.Equal(t, []datatypes.DataPoint{
		{Label: "FY2023", Value: 383285000000},
		{Label: "FY2024", Value: 391035000000},
	}, resp.Visualization.Data)

	assert.Empty(t, resp.Guardrails.UnverifiedNumbers)
	assert.NotNil(t, resp.Guardrails.UnverifiedNumbers)
	assert.False(t, resp.Guardrails.LLMComputedMath)
	assert.Equal(t, 3, resp.Guardrails.NumbersChecked)

	require.Len(t, resp.Steps, 3)
	for _, s := range resp.Steps {
		assert.Equal(t, "succeeded", s.Status)
	}
	assert.Empty(t, h.summarizer.input.Failures)
	assert.Equal(t, "AAPL", h.summarizer.input.Query.Ticker)
}

func TestProcess_FlagsFabricatedNumbers(t *testing.T) {
	h := newHarness(t)
	h.summarizer.text = "Apple's revenue grew 5.1% to $391.0 billion, a 46.2% gross margin."

	resp, err := h.pipeline.Process(context.Background(), ask("How did Apple's revenue grow in FY2024?"))
	require.NoError(t, err)
	assert.Equal(t, []string{"5.1%", "46.2%"}, resp.Guardrails.UnverifiedNumbers)
	assert.True(t, resp.Guardrails.LLMComputedMath)
}

func TestProcess_ClarificationShortCircuits(t *testing.T) {
	h := newHarness(t)
	h.clarifier.resp = &datatypes.ClarificationResponse{
		NeedsClarification: true,
		Confidence:         0.4,
		FollowUpQuestion:   "Which company do you mean?",
	}

	resp, err := h.pipeline.Process(context.Background(), ask("how is revenue?"))
	require.NoError(t, err)
	assert.True(t, resp.NeedsClarification)
	assert.Equal(t, "Which company do you mean?", resp.FollowUpQuestion)
	assert.Empty(t, resp.RawData)
	assert.NotNil(t, resp.Guardrails.UnverifiedNumbers)
	assert.Zero(t, h.planner.calls)
	assert.Zero(t, h.summarizer.calls)
}

func TestProcess_ScopeRejectedBeforeAnyModelCall(t *testing.T) {
	h := newHarness(t)

	_, err := h.pipeline.Process(context.Background(), ask("Show me Apple's Balance Sheet for 2024"))
	require.ErrorIs(t, err, ErrOutOfScope)
	var se *ScopeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "balance sheet", se.Keyword)
	assert.Zero(t, h.clarifier.calls)
}

func TestProcess_EmptyAfterSanitize(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.Process(context.Background(), ask(" \x00\x01\x7f "))
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, h.clarifier.calls)
}

func TestProcess_SanitizedMessageReachesClarifier(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.Process(context.Background(), ask("  Apple\x00 revenue FY2024\x1f  "))
	require.NoError(t, err)
	assert.Equal(t, "Apple revenue FY2024", h.clarifier.seen)
}

func TestProcess_NoDataCarriesGatewayError(t *testing.T) {
	h := newHarness(t)
	h.planner.raw = growthPlan("ZZZZ", "FY2024", "FY2023")

	_, err := h.pipeline.Process(context.Background(), ask("How did ZZZZ revenue grow?"))
	require.ErrorIs(t, err, ErrNoData)
	assert.ErrorIs(t, err, edgar.ErrCompanyNotFound)
	var nd *NoDataError
	require.ErrorAs(t, err, &nd)
	assert.Equal(t, 1, nd.Cause.StepID)
	assert.Zero(t, h.summarizer.calls)
}

func TestProcess_PartialFailureIsNarrated(t *testing.T) {
	h := newHarness(t)
	h.planner.raw = growthPlan("AAPL", "FY2024", "FY2019")

	resp, err := h.pipeline.Process(context.Background(), ask("How did Apple's revenue grow since 2019?"))
	require.NoError(t, err)

	require.Len(t, resp.Steps, 3)
	assert.Len(t, resp.RawData, 1)
	assert.Empty(t, resp.Computations)

	failures := h.summarizer.input.Failures
	require.Len(t, failures, 2)
	assert.Equal(t, 2, failures[0].StepID)
	assert.Equal(t, "not_found", failures[0].ErrorKind)
	assert.Equal(t, "skipped", failures[1].Status)
	assert.Equal(t, 2, failures[1].SkippedBy)
}

func TestProcess_StageErrorsPropagate(t *testing.T) {
	t.Run("clarifier", func(t *testing.T) {
		h := newHarness(t)
		h.clarifier.err = fmt.Errorf("clarification agent: %w", llm.ErrProvider)
		_, err := h.pipeline.Process(context.Background(), ask("Apple revenue"))
		assert.ErrorIs(t, err, llm.ErrProvider)
	})
	t.Run("planner validation", func(t *testing.T) {
		h := newHarness(t)
		h.planner.raw = plan.RawPlan{Steps: []plan.RawStep{{StepID: 1, Tool: "get_stock_price"}}}
		_, err := h.pipeline.Process(context.Background(), ask("Apple revenue"))
		var ve *plan.ValidationError
		assert.ErrorAs(t, err, &ve)
		assert.Zero(t, h.summarizer.calls)
	})
	t.Run("summarizer", func(t *testing.T) {
		h := newHarness(t)
		h.summarizer.err = fmt.Errorf("summarizer agent: %w", llm.ErrProvider)
		_, err := h.pipeline.Process(context.Background(), ask("Apple revenue"))
		assert.ErrorIs(t, err, llm.ErrProvider)
	})
	t.Run("cancelled", func(t *testing.T) {
		h := newHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := h.pipeline.Process(ctx, ask("Apple revenue"))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, h.summarizer.calls)
	})
}

func TestNew_RequiresStages(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

// =============================================================================
// ExecutePlan
// =============================================================================

func TestExecutePlan_VerifiesNarrative(t *testing.T) {
	h := newHarness(t)

	resp, err := h.pipeline.ExecutePlan(context.Background(), growthPlan("AAPL", "FY2024", "FY2023"),
		"AAPL revenue rose 2.02% but margins hit 99.9%.")
	require.NoError(t, err)
	assert.Equal(t, []string{"99.9%"}, resp.Guardrails.UnverifiedNumbers)
	assert.True(t, resp.Guardrails.LLMComputedMath)
	assert.Len(t, resp.Computations, 1)
	assert.Zero(t, h.clarifier.calls)
	assert.Zero(t, h.summarizer.calls)
}

func TestExecutePlan_NoNarrative(t *testing.T) {
	h := newHarness(t)
	resp, err := h.pipeline.ExecutePlan(context.Background(), growthPlan("AAPL", "FY2024", "FY2023"), "")
	require.NoError(t, err)
	assert.Zero(t, resp.Guardrails.NumbersChecked)
	assert.Empty(t, resp.Guardrails.UnverifiedNumbers)
}

func TestExecutePlan_InvalidPlan(t *testing.T) {
	h := newHarness(t)
	_, err := h.pipeline.ExecutePlan(context.Background(), plan.RawPlan{}, "")
	assert.ErrorIs(t, err, plan.ErrEmptyPlan)
}

// =============================================================================
// Guardrails
// =============================================================================

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"trims", "  hello  ", 0, "hello"},
		{"strips control chars", "a\x00b\x08c\x0bd\x7fe", 0, "abcde"},
		{"keeps newlines and tabs", "a\tb\nc", 0, "a\tb\nc"},
		{"truncates runes", "ééééé", 3, "ééé"},
		{"default limit", strings.Repeat("x", 2500), 0, strings.Repeat("x", 2000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in, tt.limit))
		})
	}
}

func TestCheckScope(t *testing.T) {
	tests := []struct {
		msg     string
		keyword string
	}{
		{"What was Apple's revenue in FY2024?", ""},
		{"Apple gross margin trend", ""},
		{"Run a DCF on NVDA", "dcf"},
		{"What is MSFT's market cap?", "market cap"},
		{"Show me free cash flow", "cash flow"},
		{"How much debt does Ford carry", "debt"},
		{"Apple dividend history", "dividend"},
		{"total shareholders' equity", "equity"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := CheckScope(tt.msg)
			if tt.keyword == "" {
				assert.NoError(t, err)
				return
			}
			var se *ScopeError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.keyword, se.Keyword)
			assert.Contains(t, err.Error(), "income statement analysis only")
			assert.True(t, errors.Is(err, ErrOutOfScope))
		})
	}
}
