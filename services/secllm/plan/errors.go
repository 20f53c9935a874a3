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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors for the plan package. Every one of them is wrapped in a
// *ValidationError and means the whole plan is rejected before any tool runs.
var (
	// ErrEmptyPlan is returned when a plan has no steps.
	ErrEmptyPlan = errors.New("plan has no steps")

	// ErrTooManySteps is returned when a plan exceeds MaxSteps.
	ErrTooManySteps = errors.New("plan has too many steps")

	// ErrInvalidStepID is returned for a zero or negative step id.
	ErrInvalidStepID = errors.New("step id must be a positive integer")

	// ErrDuplicateStep is returned when two steps share an id.
	ErrDuplicateStep = errors.New("duplicate step id")

	// ErrUnknownTool is returned for a tool name outside the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrMalformedArg is returned for unknown, duplicate, missing or
	// wrongly shaped arguments.
	ErrMalformedArg = errors.New("malformed argument")

	// ErrMalformedReference is returned for a "$step" string that does not
	// parse as a step reference.
	ErrMalformedReference = errors.New("malformed step reference")

	// ErrForwardReference is returned when a step references a step whose
	// id is not smaller than its own.
	ErrForwardReference = errors.New("forward reference")

	// ErrUnknownStep is returned when a reference or depends_on names a
	// step that is not in the plan.
	ErrUnknownStep = errors.New("reference to unknown step")

	// ErrUnknownField is returned when a reference names a field the
	// referenced step's tool does not produce.
	ErrUnknownField = errors.New("reference to unknown field")

	// ErrCycleDetected is returned when the dependency graph has a cycle.
	ErrCycleDetected = errors.New("cycle detected in plan")
)

// ValidationError reports why a plan was rejected.
//
// StepID is 0 for plan-level problems.
type ValidationError struct {
	StepID int
	Detail string
	Err    error
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid plan")
	if e.StepID > 0 {
		b.WriteString(": step ")
		b.WriteString(strconv.Itoa(e.StepID))
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns the underlying sentinel or *CycleError.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(stepID int, err error, format string, args ...any) *ValidationError {
	return &ValidationError{StepID: stepID, Err: err, Detail: fmt.Sprintf(format, args...)}
}

// CycleError provides the step ids along a detected cycle. The first and
// last element are the same step.
type CycleError struct {
	Path []int
}

// Error returns the cycle description.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = strconv.Itoa(id)
	}
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(parts, " -> "))
}

// Unwrap lets errors.Is match ErrCycleDetected.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
