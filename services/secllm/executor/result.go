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
	"time"

	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// Status is the terminal state of a step.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Outcome is what happened to one step.
type Outcome struct {
	StepID int
	Tool   plan.ToolName
	Status Status

	// Output is set when Status is StatusSucceeded.
	Output Output

	// Err is set when Status is StatusFailed.
	Err *StepError

	// SkippedBy is the failed step that caused a skip.
	SkippedBy int

	Duration time.Duration
}

// Result is the outcome of one plan run.
type Result struct {
	RunID string

	// Outcomes lists every step in execution order.
	Outcomes []Outcome

	// Truth is frozen.
	Truth *TruthSet

	Duration time.Duration

	byID map[int]int
}

func (r *Result) add(o Outcome) {
	r.byID[o.StepID] = len(r.Outcomes)
	r.Outcomes = append(r.Outcomes, o)
}

// Outcome returns the outcome of step id.
func (r *Result) Outcome(id int) (Outcome, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Outcome{}, false
	}
	return r.Outcomes[i], true
}

// Count returns how many steps ended in status.
func (r *Result) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// AnySucceeded reports whether at least one step produced output.
func (r *Result) AnySucceeded() bool {
	return r.Count(StatusSucceeded) > 0
}

// Statements returns the fetched statements in execution order.
func (r *Result) Statements() []*datatypes.IncomeStatement {
	var out []*datatypes.IncomeStatement
	for _, o := range r.Outcomes {
		if so, ok := o.Output.(StatementOutput); ok {
			out = append(out, so.Statement)
		}
	}
	return out
}

// Computations returns the compute outputs in execution order.
func (r *Result) Computations() []ComputeOutput {
	var out []ComputeOutput
	for _, o := range r.Outcomes {
		if co, ok := o.Output.(ComputeOutput); ok {
			out = append(out, co)
		}
	}
	return out
}

// Failures returns the failed steps' errors in execution order.
func (r *Result) Failures() []*StepError {
	var out []*StepError
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o.Err)
		}
	}
	return out
}

// Reports converts the outcomes for an API response.
func (r *Result) Reports() []datatypes.StepReport {
	out := make([]datatypes.StepReport, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		rep := datatypes.StepReport{
			StepID:    o.StepID,
			Tool:      string(o.Tool),
			Status:    string(o.Status),
			SkippedBy: o.SkippedBy,
		}
		if o.Err != nil {
			rep.Error = o.Err.Err.Error()
			rep.ErrorKind = string(o.Err.Kind)
		}
		out = append(out, rep)
	}
	return out
}
