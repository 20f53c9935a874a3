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
	"errors"
	"fmt"

	"github.com/AleutianAI/secllm/services/secllm/executor"
)

var (
	// ErrEmptyQuery is returned when nothing is left of the message after
	// sanitizing.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrOutOfScope is wrapped by *ScopeError.
	ErrOutOfScope = errors.New("query is out of scope")

	// ErrNoData is returned when a plan ran but every step failed or was
	// skipped.
	ErrNoData = errors.New("no step produced data")
)

// NoDataError carries the failure that blocked every step. It matches
// ErrNoData and, through the step error, the underlying gateway or compute
// sentinel.
type NoDataError struct {
	RunID string
	Cause *executor.StepError
}

// Error returns the error message.
func (e *NoDataError) Error() string {
	if e.Cause == nil {
		return ErrNoData.Error()
	}
	return fmt.Sprintf("%v: %v", ErrNoData, e.Cause)
}

// Unwrap returns ErrNoData and the first step failure.
func (e *NoDataError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrNoData}
	}
	return []error{ErrNoData, e.Cause}
}
