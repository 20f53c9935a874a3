// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/secllm/services/secllm/compute"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// =============================================================================
// Test helpers
// =============================================================================

// fakeSource serves statements keyed by edgar.Request.Key and records calls.
type fakeSource struct {
	mu         sync.Mutex
	statements map[string]*datatypes.IncomeStatement
	calls      []string
	block      bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{statements: map[string]*datatypes.IncomeStatement{
		"AAPL:10-K:FY2023": {
			Ticker: "AAPL", CompanyName: "Apple Inc.", CIK: "0000320193",
			FilingType: datatypes.FilingType10K, FiscalPeriod: datatypes.FiscalPeriod{Year: 2023},
			FilingDate: "2023-11-03", PeriodEnd: "2023-09-30",
			Revenue: datatypes.Float(383285000000), NetIncome: datatypes.Float(96995000000),
		},
		"AAPL:10-K:FY2024": {
			Ticker: "AAPL", CompanyName: "Apple Inc.", CIK: "0000320193",
			FilingType: datatypes.FilingType10K, FiscalPeriod: datatypes.FiscalPeriod{Year: 2024},
			FilingDate: "2024-11-01", PeriodEnd: "2024-09-28",
			Revenue: datatypes.Float(391035000000), NetIncome: datatypes.Float(93736000000),
			EPSDiluted: datatypes.Float(6.08),
		},
	}}
}

func (f *fakeSource) IncomeStatement(ctx context.Context, req edgar.Request) (*datatypes.IncomeStatement, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Key())
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if req.Ticker == "ZZZZ" {
		return nil, fmt.Errorf("%w: %s", edgar.ErrCompanyNotFound, req.Ticker)
	}
	if s, ok := f.statements[req.Key()]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", edgar.ErrFilingNotFound, req.Key())
}

func (f *fakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func fetchStep(id int, ticker, period string, deps ...int) plan.RawStep {
	return plan.RawStep{
		StepID: id,
		Tool:   "get_income_statement",
		Args: []plan.RawArg{
			{Name: "ticker", Value: plan.RawValue(ticker)},
			{Name: "filing_type", Value: "10-K"},
			{Name: "fiscal_period", Value: plan.RawValue(period)},
		},
		DependsOn: deps,
	}
}

func computeStep(id int, tool string, args ...string) plan.RawStep {
	s := plan.RawStep{StepID: id, Tool: tool}
	for _, a := range args {
		s.Args = append(s.Args, plan.RawArg{Value: plan.RawValue(a)})
	}
	return s
}

func mustParse(t *testing.T, steps ...plan.RawStep) *plan.ExecutionPlan {
	t.Helper()
	p, err := plan.Parse(plan.RawPlan{Steps: steps})
	require.NoError(t, err)
	return p
}

func newTestExecutor(t *testing.T, src edgar.Source, opts ...Option) *Executor {
	t.Helper()
	e, err := NewExecutor(src, nil, opts...)
	require.NoError(t, err)
	return e
}

func hasFact(facts []Fact, stepID int, field string, value float64) bool {
	for _, f := range facts {
		if f.StepID == stepID && f.Field == field && f.Value == value {
			return true
		}
	}
	return false
}

// =============================================================================
// End-to-end
// =============================================================================

func TestExecute_AppleRevenueGrowth(t *testing.T) {
	src := newFakeSource()
	e := newTestExecutor(t, src)
	p := mustParse(t,
		fetchStep(1, "AAPL", "FY2023"),
		fetchStep(2, "AAPL", "FY2024"),
		computeStep(3, "compute_growth", "$step2.revenue", "$step1.revenue"),
	)

	res, err := e.Execute(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Count(StatusSucceeded))
	assert.Len(t, res.RunID, 12)

	o3, ok := res.Outcome(3)
	require.True(t, ok)
	co, ok := o3.Output.(ComputeOutput)
	require.True(t, ok)
	g, ok := co.Result.(compute.GrowthResult)
	require.True(t, ok)
	assert.Equal(t, 2.02, g.GrowthPercentage)
	assert.Contains(t, g.Formula, "391,035,000,000.00")
	assert.Contains(t, g.Formula, "383,285,000,000.00")

	require.True(t, res.Truth.Frozen())
	facts := res.Truth.Facts()
	assert.True(t, hasFact(facts, 1, "revenue", 383285000000))
	assert.True(t, hasFact(facts, 2, "revenue", 391035000000))
	assert.True(t, hasFact(facts, 2, "eps_diluted", 6.08))
	assert.True(t, hasFact(facts, 3, "growth_percentage", 2.02))
	assert.Empty(t, res.Truth.FromStep(99))

	assert.Len(t, res.Statements(), 2)
	assert.Len(t, res.Computations(), 1)
	assert.Equal(t, []string{"AAPL:10-K:FY2023", "AAPL:10-K:FY2024"}, src.Calls())
}

func TestExecute_PartialFailureSkipsOnlyDependents(t *testing.T) {
	src := newFakeSource()
	e := newTestExecutor(t, src)
	p := mustParse(t,
		fetchStep(1, "ZZZZ", "FY2023"),
		fetchStep(2, "AAPL", "FY2024"),
		computeStep(3, "compute_growth", "$step:2:revenue", "$step:1:revenue"),
		computeStep(4, "compute_margin", "$step:2:net_income", "$step:2:revenue"),
		computeStep(5, "aggregate_quarters", `["$step:3:growth_percentage", "1"]`),
	)

	res, err := e.Execute(context.Background(), p)
	require.NoError(t, err)

	o1, _ := res.Outcome(1)
	assert.Equal(t, StatusFailed, o1.Status)
	require.NotNil(t, o1.Err)
	assert.Equal(t, KindNotFound, o1.Err.Kind)
	assert.ErrorIs(t, o1.Err, edgar.ErrCompanyNotFound)

	o3, _ := res.Outcome(3)
	assert.Equal(t, StatusSkipped, o3.Status)
	assert.Equal(t, 1, o3.SkippedBy)

	o5, _ := res.Outcome(5)
	assert.Equal(t, StatusSkipped, o5.Status)
	assert.Equal(t, 1, o5.SkippedBy, "skip attributed to the root failure")

	o4, _ := res.Outcome(4)
	assert.Equal(t, StatusSucceeded, o4.Status)
	m := o4.Output.(ComputeOutput).Result.(compute.MarginResult)
	assert.Equal(t, 23.97, m.MarginPercentage)

	assert.Empty(t, res.Truth.FromStep(3))
	assert.Len(t, res.Failures(), 1)
	assert.True(t, res.AnySucceeded())
}

func TestExecute_PureComputePlan(t *testing.T) {
	src := newFakeSource()
	e := newTestExecutor(t, src)
	p := mustParse(t,
		computeStep(1, "aggregate_quarters", `[10, 20, 30, 40]`, "sum"),
		computeStep(2, "compute_growth", "$step:1:result", "80"),
	)

	res, err := e.Execute(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count(StatusSucceeded))

	agg := res.Computations()[0].Result.(compute.AggregationResult)
	assert.Equal(t, 100.0, agg.Result)
	gr := res.Computations()[1].Result.(compute.GrowthResult)
	assert.Equal(t, 25.0, gr.GrowthPercentage)
	assert.Empty(t, src.Calls())
}

func TestExecute_ComputeFailures(t *testing.T) {
	tests := []struct {
		name string
		step plan.RawStep
		kind ErrorKind
		is   error
	}{
		{"division by zero", computeStep(1, "compute_growth", "10", "0"), KindDivisionByZero, compute.ErrDivisionByZero},
		{"null operand", computeStep(1, "compute_margin", "null", "10"), KindInvalidInput, compute.ErrInvalidInput},
		{"text operand", computeStep(1, "compute_margin", "lots", "10"), KindInvalidInput, compute.ErrInvalidInput},
		{"bad aggregate mode", computeStep(1, "aggregate_quarters", `[1, 2]`, "median"), KindInvalidInput, compute.ErrInvalidInput},
		{"bad period", fetchStep(1, "AAPL", "sometime"), KindInvalidInput, edgar.ErrInvalidRequest},
		{"missing filing", fetchStep(1, "AAPL", "FY2001"), KindNotFound, edgar.ErrFilingNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(t, newFakeSource())
			res, err := e.Execute(context.Background(), mustParse(t, tt.step))
			require.NoError(t, err)
			o, _ := res.Outcome(1)
			assert.Equal(t, StatusFailed, o.Status)
			require.NotNil(t, o.Err)
			assert.Equal(t, tt.kind, o.Err.Kind)
			assert.ErrorIs(t, o.Err, tt.is)
			assert.Zero(t, res.Truth.Len())
		})
	}
}

func TestExecute_UnreportedFieldIsResolutionError(t *testing.T) {
	e := newTestExecutor(t, newFakeSource())
	p := mustParse(t,
		fetchStep(1, "AAPL", "FY2024"),
		computeStep(2, "compute_margin", "$step:1:gross_profit", "$step:1:revenue"),
	)

	res, err := e.Execute(context.Background(), p)
	require.NoError(t, err)
	o, _ := res.Outcome(2)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Equal(t, KindResolution, o.Err.Kind)
	assert.ErrorIs(t, o.Err, ErrResolution)
}

func TestExecute_FiscalYearAndQuarterArgs(t *testing.T) {
	src := newFakeSource()
	e := newTestExecutor(t, src)
	p := mustParse(t,
		plan.RawStep{StepID: 1, Tool: "get_income_statement", Args: []plan.RawArg{
			{Name: "ticker", Value: "aapl"},
			{Name: "fiscal_year", Value: "2024"},
		}},
		plan.RawStep{StepID: 2, Tool: "get_income_statement", Args: []plan.RawArg{
			{Name: "ticker", Value: "$step:1:ticker"},
			{Name: "fiscal_year", Value: "$step:1:fiscal_year"},
			{Name: "quarter", Value: "Q3"},
		}},
	)

	res, err := e.Execute(context.Background(), p)
	require.NoError(t, err)
	o1, _ := res.Outcome(1)
	assert.Equal(t, StatusSucceeded, o1.Status)
	o2, _ := res.Outcome(2)
	assert.Equal(t, KindNotFound, o2.Err.Kind)
	assert.Equal(t, []string{"AAPL:10-K:FY2024", "AAPL:10-Q:Q3 FY2024"}, src.Calls())
}

// =============================================================================
// Ordering, rejection, cancellation
// =============================================================================

func TestExecute_RunsInDependencyOrder(t *testing.T) {
	src := newFakeSource()
	e := newTestExecutor(t, src)
	// Step 1 waits on step 3 through depends_on.
	p := mustParse(t,
		fetchStep(1, "AAPL", "FY2024", 3),
		fetchStep(2, "AAPL", "FY2023"),
		computeStep(3, "compute_growth", "5", "4"),
	)

	res, err := e.Execute(context.Background(), p)
	require.NoError(t, err)

	order := make([]int, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		order = append(order, o.StepID)
	}
	assert.Equal(t, []int{2, 3, 1}, order)
	assert.Equal(t, []string{"AAPL:10-K:FY2023", "AAPL:10-K:FY2024"}, src.Calls())
}

func TestExecute_RejectedPlansNeverTouchTools(t *testing.T) {
	src := newFakeSource()
	e := newTestExecutor(t, src)

	bad := []plan.RawPlan{
		{Steps: []plan.RawStep{fetchStep(1, "AAPL", "FY2024", 2), fetchStep(2, "AAPL", "FY2023", 1)}},
		{Steps: []plan.RawStep{fetchStep(1, "AAPL", "FY2024"), computeStep(2, "compute_growth", "$step:3:revenue", "1"), fetchStep(3, "AAPL", "FY2023")}},
		{Steps: []plan.RawStep{fetchStep(1, "AAPL", "FY2024"), computeStep(2, "summon_oracle", "1")}},
	}
	for _, raw := range bad {
		p, err := plan.Parse(raw)
		require.Error(t, err)
		_, err = e.Execute(context.Background(), p)
		assert.ErrorIs(t, err, ErrNilPlan)
	}
	assert.Empty(t, src.Calls())
}

func TestExecute_CancellationDiscardsResults(t *testing.T) {
	src := newFakeSource()
	src.block = true
	e := newTestExecutor(t, src)
	p := mustParse(t,
		computeStep(1, "compute_growth", "2", "1"),
		fetchStep(2, "AAPL", "FY2024"),
		computeStep(3, "compute_growth", "$step:2:revenue", "1"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := e.Execute(ctx, p)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.Calls(), 1)
}

func TestExecute_StepTimeoutFailsOnlyThatStep(t *testing.T) {
	src := newFakeSource()
	src.block = true
	e := newTestExecutor(t, src, WithStepTimeout(10*time.Millisecond))
	p := mustParse(t,
		fetchStep(1, "AAPL", "FY2024"),
		computeStep(2, "compute_growth", "2", "1"),
	)

	res, err := e.Execute(context.Background(), p)
	require.NoError(t, err)
	o1, _ := res.Outcome(1)
	assert.Equal(t, KindUpstream, o1.Err.Kind)
	assert.ErrorIs(t, o1.Err, ErrStepTimeout)
	o2, _ := res.Outcome(2)
	assert.Equal(t, StatusSucceeded, o2.Status)
}

func TestNewExecutor_Validation(t *testing.T) {
	_, err := NewExecutor(nil, nil)
	assert.ErrorIs(t, err, ErrNilSource)

	e := newTestExecutor(t, newFakeSource())
	_, err = e.Execute(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNilPlan))
}

// =============================================================================
// Outputs, truth set, reports
// =============================================================================

func TestOutputs_ServeEveryDeclaredField(t *testing.T) {
	stmt := newFakeSource().statements["AAPL:10-K:FY2024"]
	g, err := compute.Growth(datatypes.Float(2), datatypes.Float(1))
	require.NoError(t, err)
	m, err := compute.Margin(datatypes.Float(1), datatypes.Float(4))
	require.NoError(t, err)
	a, err := compute.Aggregate([]*float64{datatypes.Float(1)}, compute.AggregateSum)
	require.NoError(t, err)

	outputs := []Output{
		StatementOutput{Statement: stmt},
		ComputeOutput{ToolName: plan.ToolComputeGrowth, Result: g},
		ComputeOutput{ToolName: plan.ToolComputeQoQGrowth, Result: g},
		ComputeOutput{ToolName: plan.ToolComputeMargin, Result: m},
		ComputeOutput{ToolName: plan.ToolAggregateQuarters, Result: a},
	}
	for _, out := range outputs {
		for _, f := range out.Tool().Outputs() {
			var ok bool
			if f.Type == plan.FieldNumber {
				_, ok = out.Number(f.Name)
			} else {
				_, ok = out.Text(f.Name)
			}
			assert.True(t, ok, "%s does not serve %s", out.Tool(), f.Name)
		}
		_, ok := out.Number("no_such_field")
		assert.False(t, ok)
	}
}

func TestTruthSet(t *testing.T) {
	ts := NewTruthSet()
	require.NoError(t, ts.Add(Fact{StepID: 1, Field: "growth_percentage", Value: 2.02}))
	require.NoError(t, ts.Add(Fact{StepID: 1, Field: "revenue", Value: 1}))
	require.NoError(t, ts.Add(Fact{StepID: 1, Field: "revenue", Value: 0 / zero()}))
	assert.Equal(t, 2, ts.Len())

	facts := ts.Facts()
	assert.Equal(t, FactPercentage, facts[0].Kind)
	assert.Equal(t, FactAmount, facts[1].Kind)

	ts.Freeze()
	assert.ErrorIs(t, ts.Add(Fact{StepID: 2, Field: "x", Value: 1}), ErrTruthFrozen)
}

func zero() float64 { return 0 }

func TestKindOf(t *testing.T) {
	assert.Equal(t, FactRate, KindOf("margin_rate"))
	assert.Equal(t, FactPerShare, KindOf("eps_diluted"))
	assert.Equal(t, FactPercentage, KindOf("margin_percentage"))
	assert.Equal(t, FactAmount, KindOf("net_income"))
}

func TestResult_Reports(t *testing.T) {
	e := newTestExecutor(t, newFakeSource())
	res, err := e.Execute(context.Background(), mustParse(t,
		fetchStep(1, "ZZZZ", "FY2024"),
		computeStep(2, "compute_growth", "$step:1:revenue", "1"),
	))
	require.NoError(t, err)

	reps := res.Reports()
	require.Len(t, reps, 2)
	assert.Equal(t, "failed", reps[0].Status)
	assert.Equal(t, "not_found", reps[0].ErrorKind)
	assert.NotEmpty(t, reps[0].Error)
	assert.Equal(t, "skipped", reps[1].Status)
	assert.Equal(t, 1, reps[1].SkippedBy)
}
