// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plan

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/secllm/services/secllm/compute"
)

// ToolName identifies a plan tool. Values outside Tools() never survive
// Parse, so every ToolName held by an ExecutionPlan is known.
type ToolName string

const (
	ToolGetIncomeStatement ToolName = "get_income_statement"
	ToolComputeGrowth      ToolName = "compute_growth"
	ToolComputeYoYGrowth   ToolName = "compute_yoy_growth"
	ToolComputeQoQGrowth   ToolName = "compute_qoq_growth"
	ToolComputeMargin      ToolName = "compute_margin"
	ToolAggregateQuarters  ToolName = "aggregate_quarters"
)

// ToolKind separates tools that fetch data from tools that compute.
type ToolKind int

const (
	KindData ToolKind = iota + 1
	KindCompute
)

// String returns "data" or "compute".
func (k ToolKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindCompute:
		return "compute"
	}
	return "unknown"
}

// FieldType is the type of a tool output field.
type FieldType int

const (
	FieldNumber FieldType = iota + 1
	FieldText
)

// OutputField declares one field of a tool's result.
//
// Truth marks numeric fields whose values enter the truth set used to
// verify narration.
type OutputField struct {
	Name  string
	Type  FieldType
	Truth bool
}

// Param declares one tool argument. Numeric parameters are arithmetic
// operands; the rest are labels copied onto the result.
type Param struct {
	Name     string
	Aliases  []string
	Required bool
	List     bool
	Numeric  bool
}

type toolSpec struct {
	kind    ToolKind
	fn      compute.Function
	params  []Param
	anyOf   []string
	outputs []OutputField
}

var (
	statementOutputs = []OutputField{
		{Name: "ticker", Type: FieldText},
		{Name: "company_name", Type: FieldText},
		{Name: "cik", Type: FieldText},
		{Name: "filing_type", Type: FieldText},
		{Name: "fiscal_period", Type: FieldText},
		{Name: "fiscal_year", Type: FieldNumber},
		{Name: "quarter", Type: FieldNumber},
		{Name: "period_end", Type: FieldText},
		{Name: "filing_date", Type: FieldText},
		{Name: "revenue", Type: FieldNumber, Truth: true},
		{Name: "cost_of_revenue", Type: FieldNumber, Truth: true},
		{Name: "gross_profit", Type: FieldNumber, Truth: true},
		{Name: "operating_income", Type: FieldNumber, Truth: true},
		{Name: "net_income", Type: FieldNumber, Truth: true},
		{Name: "eps_basic", Type: FieldNumber, Truth: true},
		{Name: "eps_diluted", Type: FieldNumber, Truth: true},
		{Name: "eps", Type: FieldNumber},
	}

	growthSpec = toolSpec{
		kind: KindCompute,
		fn:   compute.FunctionGrowth,
		params: []Param{
			{Name: "current", Aliases: []string{"current_value"}, Required: true, Numeric: true},
			{Name: "previous", Aliases: []string{"previous_value"}, Required: true, Numeric: true},
			{Name: "metric_name"},
			{Name: "current_period"},
			{Name: "previous_period"},
		},
		outputs: []OutputField{
			{Name: "metric_name", Type: FieldText},
			{Name: "current_period", Type: FieldText},
			{Name: "previous_period", Type: FieldText},
			{Name: "formula", Type: FieldText},
			{Name: "current_value", Type: FieldNumber, Truth: true},
			{Name: "previous_value", Type: FieldNumber, Truth: true},
			{Name: "growth_rate", Type: FieldNumber, Truth: true},
			{Name: "growth_percentage", Type: FieldNumber, Truth: true},
		},
	}

	toolSpecs = map[ToolName]toolSpec{
		ToolGetIncomeStatement: {
			kind: KindData,
			params: []Param{
				{Name: "ticker", Required: true},
				{Name: "filing_type"},
				{Name: "fiscal_period"},
				{Name: "fiscal_year"},
				{Name: "quarter"},
			},
			anyOf:   []string{"fiscal_period", "fiscal_year"},
			outputs: statementOutputs,
		},
		ToolComputeGrowth:    growthSpec,
		ToolComputeYoYGrowth: growthSpec,
		ToolComputeQoQGrowth: growthSpec,
		ToolComputeMargin: {
			kind: KindCompute,
			fn:   compute.FunctionMargin,
			params: []Param{
				{Name: "numerator", Required: true, Numeric: true},
				{Name: "denominator", Aliases: []string{"revenue"}, Required: true, Numeric: true},
				{Name: "metric_name"},
				{Name: "period"},
			},
			outputs: []OutputField{
				{Name: "metric_name", Type: FieldText},
				{Name: "period", Type: FieldText},
				{Name: "formula", Type: FieldText},
				{Name: "numerator", Type: FieldNumber, Truth: true},
				{Name: "denominator", Type: FieldNumber, Truth: true},
				{Name: "margin_rate", Type: FieldNumber, Truth: true},
				{Name: "margin_percentage", Type: FieldNumber, Truth: true},
			},
		},
		ToolAggregateQuarters: {
			kind: KindCompute,
			fn:   compute.FunctionAggregate,
			params: []Param{
				{Name: "values", Aliases: []string{"quarter_data"}, Required: true, List: true, Numeric: true},
				{Name: "method", Aliases: []string{"mode"}},
				{Name: "metric_name"},
				{Name: "periods", List: true},
			},
			outputs: []OutputField{
				{Name: "metric_name", Type: FieldText},
				{Name: "method", Type: FieldText},
				{Name: "formula", Type: FieldText},
				{Name: "result", Type: FieldNumber, Truth: true},
				{Name: "count", Type: FieldNumber},
			},
		},
	}

	toolOrder = []ToolName{
		ToolGetIncomeStatement,
		ToolComputeGrowth,
		ToolComputeYoYGrowth,
		ToolComputeQoQGrowth,
		ToolComputeMargin,
		ToolAggregateQuarters,
	}
)

// Tools returns every registered tool name.
func Tools() []ToolName {
	out := make([]ToolName, len(toolOrder))
	copy(out, toolOrder)
	return out
}

// ParseToolName validates a tool name. Matching is case-insensitive.
func ParseToolName(s string) (ToolName, error) {
	t := ToolName(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := toolSpecs[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
	return t, nil
}

// Kind reports whether the tool fetches data or computes.
func (t ToolName) Kind() ToolKind {
	return toolSpecs[t].kind
}

// Function returns the compute registry entry for a compute tool.
func (t ToolName) Function() (compute.Function, bool) {
	spec, ok := toolSpecs[t]
	if !ok || spec.kind != KindCompute {
		return "", false
	}
	return spec.fn, true
}

// Params returns the tool's declared arguments in positional order.
func (t ToolName) Params() []Param {
	return append([]Param(nil), toolSpecs[t].params...)
}

// Outputs returns the fields the tool's result is declared to contain.
func (t ToolName) Outputs() []OutputField {
	return append([]OutputField(nil), toolSpecs[t].outputs...)
}

// Output looks up one declared output field.
func (t ToolName) Output(name string) (OutputField, bool) {
	for _, f := range toolSpecs[t].outputs {
		if f.Name == name {
			return f, true
		}
	}
	return OutputField{}, false
}

// param resolves an argument name or alias to its declaration.
func (s toolSpec) param(name string) (Param, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, p := range s.params {
		if p.Name == n {
			return p, true
		}
		for _, a := range p.Aliases {
			if a == n {
				return p, true
			}
		}
	}
	return Param{}, false
}
