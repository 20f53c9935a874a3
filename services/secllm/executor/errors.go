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
	"errors"
	"fmt"

	"github.com/AleutianAI/secllm/services/secllm/compute"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

var (
	// ErrNilPlan is returned by Execute when the plan is nil.
	ErrNilPlan = errors.New("plan must not be nil")

	// ErrNilSource is returned by NewExecutor without a data source.
	ErrNilSource = errors.New("data source must not be nil")

	// ErrResolution indicates a reference could not be satisfied.
	ErrResolution = errors.New("reference resolution failed")

	// ErrTruthFrozen is returned when adding to a frozen truth set.
	ErrTruthFrozen = errors.New("truth set is frozen")

	// ErrStepTimeout indicates a step exceeded its deadline.
	ErrStepTimeout = errors.New("step timed out")
)

// ErrorKind classifies a step failure.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindRateLimited    ErrorKind = "rate_limited"
	KindUpstream       ErrorKind = "upstream"
	KindInvalidInput   ErrorKind = "invalid_input"
	KindDivisionByZero ErrorKind = "division_by_zero"
	KindResolution     ErrorKind = "resolution"
)

// StepError is the terminal failure of one step. It is local to that
// step; the executor skips the step's dependents and carries on with
// everything else.
type StepError struct {
	StepID int
	Tool   plan.ToolName
	Kind   ErrorKind
	Err    error
}

// Error implements error.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %s: %v", e.StepID, e.Tool, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// newStepError wraps err and classifies it.
func newStepError(step plan.Step, err error) *StepError {
	return &StepError{StepID: step.ID, Tool: step.Tool, Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrResolution):
		return KindResolution
	case errors.Is(err, edgar.ErrCompanyNotFound), errors.Is(err, edgar.ErrFilingNotFound):
		return KindNotFound
	case errors.Is(err, edgar.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, compute.ErrDivisionByZero):
		return KindDivisionByZero
	case errors.Is(err, compute.ErrInvalidInput), errors.Is(err, edgar.ErrInvalidRequest):
		return KindInvalidInput
	}
	// Timeouts, transport failures and anything unrecognized.
	return KindUpstream
}
