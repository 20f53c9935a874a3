// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compute holds the deterministic arithmetic used to answer
// financial questions. Every number a user sees that is not a raw filing
// fact is produced here, together with a formula string showing the exact
// operands, so the narrative layer never has to do math.
//
// All functions are pure: no I/O, no hidden state, identical output for
// identical input. They are safe for concurrent use.
package compute

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// AggregateMode selects how Aggregate folds a series.
type AggregateMode string

const (
	AggregateSum     AggregateMode = "sum"
	AggregateAverage AggregateMode = "average"
)

// ParseAggregateMode accepts "sum", "average" and "avg"/"mean".
func ParseAggregateMode(s string) (AggregateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "total":
		return AggregateSum, nil
	case "average", "avg", "mean":
		return AggregateAverage, nil
	}
	return "", operandErr(FunctionAggregate, "method", ErrInvalidInput)
}

// GrowthResult is the outcome of a growth computation.
type GrowthResult struct {
	MetricName       string  `json:"metric_name"`
	CurrentValue     float64 `json:"current_value"`
	PreviousValue    float64 `json:"previous_value"`
	CurrentPeriod    string  `json:"current_period"`
	PreviousPeriod   string  `json:"previous_period"`
	GrowthRate       float64 `json:"growth_rate"`
	GrowthPercentage float64 `json:"growth_percentage"`
	Formula          string  `json:"formula"`
}

// MarginResult is the outcome of a margin computation.
type MarginResult struct {
	MetricName       string  `json:"metric_name"`
	Numerator        float64 `json:"numerator"`
	Denominator      float64 `json:"denominator"`
	Period           string  `json:"period"`
	MarginRate       float64 `json:"margin_rate"`
	MarginPercentage float64 `json:"margin_percentage"`
	Formula          string  `json:"formula"`
}

// AggregationResult is the outcome of folding a quarterly series.
type AggregationResult struct {
	MetricName string        `json:"metric_name"`
	Values     []float64     `json:"values"`
	Periods    []string      `json:"periods"`
	Method     AggregateMode `json:"method"`
	Result     float64       `json:"result"`
	Formula    string        `json:"formula"`
}

// Growth computes (current - previous) / previous * 100.
//
// # Description
//
// The percentage is rounded to two decimals and the rate to six. The same
// formula serves year-over-year and quarter-over-quarter growth; the caller
// picks the two periods.
//
// # Outputs
//
//   - ErrInvalidInput when either operand is nil, NaN or infinite.
//   - ErrDivisionByZero when previous is zero.
func Growth(current, previous *float64) (GrowthResult, error) {
	cur, err := operand(FunctionGrowth, "current", current)
	if err != nil {
		return GrowthResult{}, err
	}
	prev, err := operand(FunctionGrowth, "previous", previous)
	if err != nil {
		return GrowthResult{}, err
	}
	if prev == 0 {
		return GrowthResult{}, operandErr(FunctionGrowth, "previous", ErrDivisionByZero)
	}

	rate := (cur - prev) / prev
	pct := round(rate*100, 2)
	return GrowthResult{
		CurrentValue:     cur,
		PreviousValue:    prev,
		GrowthRate:       round(rate, 6),
		GrowthPercentage: pct,
		Formula: printer.Sprintf("(%.2f - %.2f) / %.2f = %s%%",
			cur, prev, prev, plain(pct)),
	}, nil
}

// Margin computes numerator / denominator * 100, rounded to two decimals.
//
// Gross, operating and net margin differ only in which metric is passed
// as the numerator.
func Margin(numerator, denominator *float64) (MarginResult, error) {
	num, err := operand(FunctionMargin, "numerator", numerator)
	if err != nil {
		return MarginResult{}, err
	}
	den, err := operand(FunctionMargin, "denominator", denominator)
	if err != nil {
		return MarginResult{}, err
	}
	if den == 0 {
		return MarginResult{}, operandErr(FunctionMargin, "denominator", ErrDivisionByZero)
	}

	rate := num / den
	pct := round(rate*100, 2)
	return MarginResult{
		Numerator:        num,
		Denominator:      den,
		MarginRate:       round(rate, 6),
		MarginPercentage: pct,
		Formula:          printer.Sprintf("%.2f / %.2f = %s%%", num, den, plain(pct)),
	}, nil
}

// Aggregate sums or averages an ordered series of quarterly values.
// An empty series, a nil element or an unknown mode is ErrInvalidInput.
func Aggregate(values []*float64, mode AggregateMode) (AggregationResult, error) {
	if mode != AggregateSum && mode != AggregateAverage {
		return AggregationResult{}, operandErr(FunctionAggregate, "method", ErrInvalidInput)
	}
	if len(values) == 0 {
		return AggregationResult{}, operandErr(FunctionAggregate, "values", ErrInvalidInput)
	}

	series := make([]float64, len(values))
	terms := make([]string, len(values))
	var total float64
	for i, v := range values {
		f, err := operand(FunctionAggregate, "values", v)
		if err != nil {
			return AggregationResult{}, err
		}
		series[i] = f
		terms[i] = printer.Sprintf("%.2f", f)
		total += f
	}

	res := AggregationResult{Values: series, Method: mode}
	joined := strings.Join(terms, " + ")
	switch mode {
	case AggregateSum:
		res.Result = round(total, 2)
		res.Formula = joined + " = " + printer.Sprintf("%.2f", total)
	case AggregateAverage:
		avg := total / float64(len(series))
		res.Result = round(avg, 2)
		res.Formula = "(" + joined + ") / " + printer.Sprintf("%d", len(series)) +
			" = " + printer.Sprintf("%.2f", avg)
	}
	return res, nil
}

// printer renders operands with thousands separators, matching how
// filings present dollar amounts.
var printer = message.NewPrinter(language.English)

func operand(fn Function, name string, v *float64) (float64, error) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, operandErr(fn, name, ErrInvalidInput)
	}
	return *v, nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// plain formats a percentage without grouping.
func plain(pct float64) string {
	return strconv.FormatFloat(pct, 'f', 2, 64)
}
