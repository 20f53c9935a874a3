// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package edgar

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the gateway. Callers match them with
// errors.Is; the executor maps each to a step error kind.
var (
	// ErrCompanyNotFound indicates the ticker has no SEC registrant.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrFilingNotFound indicates no filing matches the requested period.
	ErrFilingNotFound = errors.New("filing not found")

	// ErrRateLimited indicates EDGAR kept answering 429 after retries.
	ErrRateLimited = errors.New("edgar rate limit exceeded")

	// ErrUpstream indicates a transport failure or unexpected EDGAR status.
	ErrUpstream = errors.New("edgar upstream error")

	// ErrInvalidRequest indicates a malformed ticker, filing type or period.
	ErrInvalidRequest = errors.New("invalid filing request")
)

// StatusError records a non-2xx EDGAR response.
type StatusError struct {
	StatusCode int
	URL        string
	Err        error
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %v", e.URL, e.StatusCode, e.Err)
}

// Unwrap returns the sentinel the status maps to.
func (e *StatusError) Unwrap() error {
	return e.Err
}
