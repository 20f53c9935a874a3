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
	"github.com/AleutianAI/secllm/services/secllm/compute"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// Output is the result payload of a successful step.
//
// Number and Text serve exactly the fields the step's tool declares. The
// boolean is false for undeclared fields; a declared numeric field the
// payload lacks returns (nil, true).
type Output interface {
	Tool() plan.ToolName
	Number(field string) (*float64, bool)
	Text(field string) (string, bool)
}

// StatementOutput is the result of get_income_statement.
type StatementOutput struct {
	Statement *datatypes.IncomeStatement
}

// Tool implements Output.
func (StatementOutput) Tool() plan.ToolName { return plan.ToolGetIncomeStatement }

// Number implements Output.
func (o StatementOutput) Number(field string) (*float64, bool) {
	s := o.Statement
	switch field {
	case "fiscal_year":
		return datatypes.Float(float64(s.FiscalPeriod.Year)), true
	case "quarter":
		if s.FiscalPeriod.IsAnnual() {
			return nil, true
		}
		return datatypes.Float(float64(s.FiscalPeriod.Quarter)), true
	case "eps":
		return s.EPSDiluted, true
	}
	m := datatypes.MetricName(field)
	for _, known := range datatypes.AllMetrics {
		if known == m {
			return s.Metric(m), true
		}
	}
	return nil, false
}

// Text implements Output.
func (o StatementOutput) Text(field string) (string, bool) {
	s := o.Statement
	switch field {
	case "ticker":
		return s.Ticker, true
	case "company_name":
		return s.CompanyName, true
	case "cik":
		return s.CIK, true
	case "filing_type":
		return string(s.FilingType), true
	case "fiscal_period":
		return s.FiscalPeriod.Label(), true
	case "period_end":
		return s.PeriodEnd, true
	case "filing_date":
		return s.FilingDate, true
	}
	return "", false
}

// ComputeOutput is the result of a compute tool.
type ComputeOutput struct {
	ToolName plan.ToolName
	Result   compute.Result
}

// Tool implements Output.
func (o ComputeOutput) Tool() plan.ToolName { return o.ToolName }

// Number implements Output.
func (o ComputeOutput) Number(field string) (*float64, bool) {
	switch r := o.Result.(type) {
	case compute.GrowthResult:
		switch field {
		case "current_value":
			return datatypes.Float(r.CurrentValue), true
		case "previous_value":
			return datatypes.Float(r.PreviousValue), true
		case "growth_rate":
			return datatypes.Float(r.GrowthRate), true
		case "growth_percentage":
			return datatypes.Float(r.GrowthPercentage), true
		}
	case compute.MarginResult:
		switch field {
		case "numerator":
			return datatypes.Float(r.Numerator), true
		case "denominator":
			return datatypes.Float(r.Denominator), true
		case "margin_rate":
			return datatypes.Float(r.MarginRate), true
		case "margin_percentage":
			return datatypes.Float(r.MarginPercentage), true
		}
	case compute.AggregationResult:
		switch field {
		case "result":
			return datatypes.Float(r.Result), true
		case "count":
			return datatypes.Float(float64(len(r.Values))), true
		}
	}
	return nil, false
}

// Text implements Output.
func (o ComputeOutput) Text(field string) (string, bool) {
	if field == "formula" {
		return o.Result.FormulaString(), true
	}
	switch r := o.Result.(type) {
	case compute.GrowthResult:
		switch field {
		case "metric_name":
			return r.MetricName, true
		case "current_period":
			return r.CurrentPeriod, true
		case "previous_period":
			return r.PreviousPeriod, true
		}
	case compute.MarginResult:
		switch field {
		case "metric_name":
			return r.MetricName, true
		case "period":
			return r.Period, true
		}
	case compute.AggregationResult:
		switch field {
		case "metric_name":
			return r.MetricName, true
		case "method":
			return string(r.Method), true
		}
	}
	return "", false
}
