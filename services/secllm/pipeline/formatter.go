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
	"cmp"
	"slices"

	"github.com/AleutianAI/secllm/services/secllm/compute"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/executor"
)

// RawData returns one record per fetched statement in execution order.
// Unreported metrics are present with a nil value.
func RawData(res *executor.Result) []map[string]any {
	out := make([]map[string]any, 0)
	for _, o := range res.Outcomes {
		so, ok := o.Output.(executor.StatementOutput)
		if !ok {
			continue
		}
		s := so.Statement
		rec := map[string]any{
			"step_id":          o.StepID,
			"ticker":           s.Ticker,
			"company_name":     s.CompanyName,
			"cik":              s.CIK,
			"filing_type":      string(s.FilingType),
			"fiscal_period":    s.FiscalPeriod.Label(),
			"period_end":       s.PeriodEnd,
			"filing_date":      s.FilingDate,
			"accession_number": s.AccessionNumber,
		}
		for _, m := range datatypes.AllMetrics {
			if v := s.Metric(m); v != nil {
				rec[string(m)] = *v
			} else {
				rec[string(m)] = nil
			}
		}
		out = append(out, rec)
	}
	return out
}

// Computations returns one record per compute step in execution order.
func Computations(res *executor.Result) []map[string]any {
	out := make([]map[string]any, 0)
	for _, o := range res.Outcomes {
		co, ok := o.Output.(executor.ComputeOutput)
		if !ok {
			continue
		}
		rec := map[string]any{
			"step_id": o.StepID,
			"tool":    string(co.ToolName),
			"formula": co.Result.FormulaString(),
		}
		switch r := co.Result.(type) {
		case compute.GrowthResult:
			rec["metric_name"] = r.MetricName
			rec["current_value"] = r.CurrentValue
			rec["previous_value"] = r.PreviousValue
			rec["current_period"] = r.CurrentPeriod
			rec["previous_period"] = r.PreviousPeriod
			rec["growth_rate"] = r.GrowthRate
			rec["growth_percentage"] = r.GrowthPercentage
		case compute.MarginResult:
			rec["metric_name"] = r.MetricName
			rec["numerator"] = r.Numerator
			rec["denominator"] = r.Denominator
			rec["period"] = r.Period
			rec["margin_rate"] = r.MarginRate
			rec["margin_percentage"] = r.MarginPercentage
		case compute.AggregationResult:
			rec["metric_name"] = r.MetricName
			rec["values"] = r.Values
			rec["periods"] = r.Periods
			rec["method"] = string(r.Method)
			rec["result"] = r.Result
		}
		out = append(out, rec)
	}
	return out
}

// Citations lists the filings behind the fetched statements, one per
// distinct filing and period.
func Citations(res *executor.Result) []datatypes.SourceCitation {
	out := make([]datatypes.SourceCitation, 0)
	seen := make(map[string]bool)
	for _, s := range res.Statements() {
		key := s.Ticker + "|" + s.AccessionNumber + "|" + s.FiscalPeriod.Label()
		if seen[key] {
			continue
		}
		seen[key] = true
		c := datatypes.SourceCitation{
			Ticker:       s.Ticker,
			FilingType:   string(s.FilingType),
			FilingDate:   s.FilingDate,
			FiscalPeriod: s.FiscalPeriod.Label(),
		}
		if s.CIK != "" && s.AccessionNumber != "" {
			c.URL = edgar.FilingURL(s.CIK, s.AccessionNumber)
		}
		out = append(out, c)
	}
	return out
}

// statementMetric maps a query metric to the statement line it charts.
// Gross margin charts gross profit unless a margin was computed.
func statementMetric(m datatypes.QueryMetric) datatypes.MetricName {
	switch m {
	case datatypes.QueryMetricNetIncome:
		return datatypes.MetricNetIncome
	case datatypes.QueryMetricEPS:
		return datatypes.MetricEPSDiluted
	case datatypes.QueryMetricGrossMargin:
		return datatypes.MetricGrossProfit
	case datatypes.QueryMetricOperatingIncome:
		return datatypes.MetricOperatingIncome
	}
	return datatypes.MetricRevenue
}

// Visualization builds the chart payload for the query type, or nil when
// the run produced nothing to chart.
func Visualization(qt datatypes.QueryType, metric datatypes.QueryMetric, res *executor.Result) *datatypes.VisualizationPayload {
	var (
		chart datatypes.ChartType
		data  []datatypes.DataPoint
	)
	switch qt {
	case datatypes.QueryTypeDirectRetrieval:
		chart = datatypes.ChartSingleValue
		data = metricPoints(metric, res)
	case datatypes.QueryTypeGrowthComparison:
		chart = datatypes.ChartComparison
		data = growthPoints(res)
		if len(data) == 0 {
			data = metricPoints(metric, res)
		}
	case datatypes.QueryTypeTimeSeries:
		chart = datatypes.ChartTimeSeries
		data = metricPoints(metric, res)
		if len(data) == 0 {
			data = aggregationPoints(res)
		}
	default:
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	return &datatypes.VisualizationPayload{ChartType: chart, Metric: string(metric), Data: data}
}

// metricPoints charts one value per fetched period in chronological order.
// Computed margins take precedence for gross margin.
func metricPoints(metric datatypes.QueryMetric, res *executor.Result) []datatypes.DataPoint {
	if metric == datatypes.QueryMetricGrossMargin {
		var margins []datatypes.DataPoint
		for _, co := range res.Computations() {
			if r, ok := co.Result.(compute.MarginResult); ok {
				margins = append(margins, datatypes.DataPoint{Label: r.Period, Value: r.MarginPercentage})
			}
		}
		if len(margins) > 0 {
			return margins
		}
	}

	stmts := res.Statements()
	slices.SortStableFunc(stmts, func(a, b *datatypes.IncomeStatement) int {
		return cmp.Or(
			cmp.Compare(a.FiscalPeriod.Year, b.FiscalPeriod.Year),
			cmp.Compare(quarterOrder(a.FiscalPeriod), quarterOrder(b.FiscalPeriod)),
		)
	})
	name := statementMetric(metric)
	var out []datatypes.DataPoint
	for _, s := range stmts {
		if v := s.Metric(name); v != nil {
			out = append(out, datatypes.DataPoint{Label: s.FiscalPeriod.Label(), Value: *v})
		}
	}
	return out
}

// quarterOrder places an annual figure after the year's quarters.
func quarterOrder(p datatypes.FiscalPeriod) int {
	if p.IsAnnual() {
		return 5
	}
	return p.Quarter
}

func growthPoints(res *executor.Result) []datatypes.DataPoint {
	var out []datatypes.DataPoint
	for _, co := range res.Computations() {
		if r, ok := co.Result.(compute.GrowthResult); ok {
			out = append(out,
				datatypes.DataPoint{Label: r.PreviousPeriod, Value: r.PreviousValue},
				datatypes.DataPoint{Label: r.CurrentPeriod, Value: r.CurrentValue},
			)
		}
	}
	return out
}

func aggregationPoints(res *executor.Result) []datatypes.DataPoint {
	var out []datatypes.DataPoint
	for _, co := range res.Computations() {
		r, ok := co.Result.(compute.AggregationResult)
		if !ok {
			continue
		}
		for i, v := range r.Values {
			label := ""
			if i < len(r.Periods) {
				label = r.Periods[i]
			}
			out = append(out, datatypes.DataPoint{Label: label, Value: v})
		}
	}
	return out
}
