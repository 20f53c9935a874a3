// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks identifiers that arrive from users or model
// output before they reach EDGAR URLs, cache keys or Flux queries.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidTicker is wrapped by every ticker validation failure.
var ErrInvalidTicker = errors.New("invalid ticker")

// tickerPattern matches exchange ticker symbols.
// Allows: uppercase letters, digits, dots (BRK.B), hyphens (BRK-B)
// Max length: 10 characters
var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// ValidateTicker rejects anything that is not an uppercase ticker.
//
// Valid tickers:
//   - 1-10 characters
//   - Uppercase letters A-Z and digits 0-9
//   - Dots or hyphens after the first character, for class shares
//
// Example:
//
//	if err := validation.ValidateTicker(req.Ticker); err != nil {
//	    return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
//	}
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTicker)
	}
	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("%w: %q (must be 1-10 uppercase alphanumeric chars, dots, or hyphens)", ErrInvalidTicker, ticker)
	}
	return nil
}

// SanitizeTicker trims and upper-cases ticker, then validates it.
//
//	t, err := validation.SanitizeTicker(" brk.b ")
//	// t == "BRK.B"
func SanitizeTicker(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if err := ValidateTicker(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// ClassShareVariants lists the spellings a class-share ticker may have in
// a directory. SEC's company_tickers.json writes BRK-B where quote feeds
// write BRK.B. The input spelling is always first.
func ClassShareVariants(ticker string) []string {
	out := []string{ticker}
	if strings.Contains(ticker, ".") {
		out = append(out, strings.ReplaceAll(ticker, ".", "-"))
	}
	if strings.Contains(ticker, "-") {
		out = append(out, strings.ReplaceAll(ticker, "-", "."))
	}
	return out
}
