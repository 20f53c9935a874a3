// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compute

import "fmt"

// Function identifies one entry of the closed compute registry.
type Function string

const (
	FunctionGrowth    Function = "growth"
	FunctionMargin    Function = "margin"
	FunctionAggregate Function = "aggregate"
)

// Functions lists every registered function.
var Functions = []Function{FunctionGrowth, FunctionMargin, FunctionAggregate}

// Result is implemented by GrowthResult, MarginResult and AggregationResult.
type Result interface {
	// FormulaString returns the human-readable arithmetic.
	FormulaString() string
	sealed()
}

func (r GrowthResult) FormulaString() string      { return r.Formula }
func (r MarginResult) FormulaString() string      { return r.Formula }
func (r AggregationResult) FormulaString() string { return r.Formula }

func (GrowthResult) sealed()      {}
func (MarginResult) sealed()      {}
func (AggregationResult) sealed() {}

// Operands carries resolved arguments for a registry call.
//
// Numbers holds named scalar operands ("current", "previous",
// "numerator", "denominator"). Series holds the ordered values for
// aggregation. Labels holds descriptive strings ("metric_name",
// "current_period", "previous_period", "period", "method") that are copied
// onto the result but never affect arithmetic.
type Operands struct {
	Numbers map[string]*float64
	Series  []*float64
	Periods []string
	Labels  map[string]string
}

// Registry dispatches a Function to its implementation. The zero value
// is ready to use.
type Registry struct{}

// Invoke runs fn over the operands.
//
// # Inputs
//
//   - fn: one of Functions.
//   - in: resolved operands. Missing numeric operands are treated as nil
//     and fail with ErrInvalidInput.
//
// # Outputs
//
//   - Result: a GrowthResult, MarginResult or AggregationResult value.
//   - error: wraps ErrInvalidInput, ErrDivisionByZero or ErrUnknownFunction.
func (Registry) Invoke(fn Function, in Operands) (Result, error) {
	switch fn {
	case FunctionGrowth:
		r, err := Growth(in.Numbers["current"], in.Numbers["previous"])
		if err != nil {
			return nil, err
		}
		r.MetricName = in.Labels["metric_name"]
		r.CurrentPeriod = in.Labels["current_period"]
		r.PreviousPeriod = in.Labels["previous_period"]
		return r, nil

	case FunctionMargin:
		r, err := Margin(in.Numbers["numerator"], in.Numbers["denominator"])
		if err != nil {
			return nil, err
		}
		r.MetricName = in.Labels["metric_name"]
		r.Period = in.Labels["period"]
		return r, nil

	case FunctionAggregate:
		mode := AggregateSum
		if m, ok := in.Labels["method"]; ok && m != "" {
			parsed, err := ParseAggregateMode(m)
			if err != nil {
				return nil, err
			}
			mode = parsed
		}
		r, err := Aggregate(in.Series, mode)
		if err != nil {
			return nil, err
		}
		r.MetricName = in.Labels["metric_name"]
		r.Periods = in.Periods
		return r, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, fn)
}
