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

import (
	"errors"
	"fmt"
)

// Sentinel errors for the compute package.
var (
	// ErrInvalidInput is returned for null, non-finite, missing or empty operands.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDivisionByZero is returned when a divisor operand is zero.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrUnknownFunction is returned by the registry for a function it does not hold.
	ErrUnknownFunction = errors.New("unknown compute function")
)

// OperandError names the operand that made a computation fail.
type OperandError struct {
	Function Function
	Operand  string
	Err      error
}

// Error returns the error message.
func (e *OperandError) Error() string {
	return fmt.Sprintf("%s: operand %q: %v", e.Function, e.Operand, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *OperandError) Unwrap() error {
	return e.Err
}

func operandErr(fn Function, operand string, err error) error {
	return &OperandError{Function: fn, Operand: operand, Err: err}
}
