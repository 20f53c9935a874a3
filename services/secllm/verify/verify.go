// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify checks narrated numbers against the truth set of a plan
// run.
//
// Verification never fails and never blocks a response. Numbers it cannot
// ground are reported so callers can surface them next to the answer.
package verify

import (
	"math"

	"github.com/AleutianAI/secllm/services/secllm/executor"
)

// DefaultRelTolerance is the relative tolerance, 0.01%.
const DefaultRelTolerance = 0.0001

const (
	// oneCent is the absolute tolerance for currency claims.
	oneCent = 0.01

	// slack absorbs binary rounding at the tolerance boundary.
	slack = 1e-9
)

// TruthSource supplies ground-truth facts. *executor.TruthSet satisfies it.
type TruthSource interface {
	Facts() []executor.Fact
}

// Report is the outcome of verifying one narrative.
type Report struct {
	// Unverified lists claims with no matching truth value, deduplicated,
	// in order of first appearance. Never nil.
	Unverified []string

	// LLMComputedMath is true when an unverified claim looks computed by
	// the narrator: any percentage, or an amount equal to the sum or
	// difference of two truth values.
	LLMComputedMath bool

	// Checked counts the claims examined.
	Checked int
}

// Verifier matches numeric claims to truth values.
//
// Thread Safety: safe for concurrent use; it holds no mutable state.
type Verifier struct {
	relTol float64
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRelTolerance overrides DefaultRelTolerance. Negative values are
// ignored.
func WithRelTolerance(tol float64) Option {
	return func(v *Verifier) {
		if tol >= 0 {
			v.relTol = tol
		}
	}
}

// New creates a Verifier.
func New(opts ...Option) *Verifier {
	v := &Verifier{relTol: DefaultRelTolerance}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify extracts every numeric claim from narrative and reports those no
// truth value supports. ignore lists strings that are never claims, such
// as the ticker.
//
// A claim matches a truth value when their magnitudes differ by no more
// than the largest of: the relative tolerance times the truth value, half
// a unit of the claim's printed precision, and one cent for currency.
// Percent claims only match percentage facts. Signs are ignored because
// prose states direction in words ("fell 3.4%").
//
// The result depends only on the inputs, so repeated calls agree.
func (v *Verifier) Verify(narrative string, truth TruthSource, ignore ...string) Report {
	var facts []executor.Fact
	if truth != nil {
		facts = truth.Facts()
	}

	report := Report{Unverified: []string{}}
	seen := make(map[string]bool)
	for _, tok := range Extract(narrative, ignore...) {
		report.Checked++
		if v.grounded(tok, facts) {
			continue
		}
		if seen[tok.Text] {
			continue
		}
		seen[tok.Text] = true
		report.Unverified = append(report.Unverified, tok.Text)
		if tok.Percent || v.derived(tok, facts) {
			report.LLMComputedMath = true
		}
	}
	return report
}

func (v *Verifier) grounded(tok Token, facts []executor.Fact) bool {
	for _, f := range facts {
		if tok.Percent && f.Kind != executor.FactPercentage {
			continue
		}
		if v.matches(tok, f.Value) {
			return true
		}
	}
	return false
}

// derived reports whether an amount equals the sum or difference of two
// non-percentage truth values, as in "revenue rose $7.75 billion".
func (v *Verifier) derived(tok Token, facts []executor.Fact) bool {
	for i := range facts {
		if facts[i].Kind == executor.FactPercentage {
			continue
		}
		a := math.Abs(facts[i].Value)
		for j := i + 1; j < len(facts); j++ {
			if facts[j].Kind == executor.FactPercentage {
				continue
			}
			b := math.Abs(facts[j].Value)
			if v.matches(tok, a-b) || v.matches(tok, a+b) {
				return true
			}
		}
	}
	return false
}

func (v *Verifier) matches(tok Token, value float64) bool {
	truth := math.Abs(value)
	tol := math.Max(v.relTol*truth, tok.Precision)
	if tok.Currency {
		tol = math.Max(tol, oneCent)
	}
	return math.Abs(tok.Value-truth)-tol <= slack*math.Max(1, truth)
}
