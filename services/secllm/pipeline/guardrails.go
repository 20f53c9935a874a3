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
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxQueryLength bounds a user message in runes.
const DefaultMaxQueryLength = 2000

// controlChars are stripped from user input; tab, newline and carriage
// return survive.
var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)

// outOfScopeKeywords name topics outside income-statement analysis.
// Matching is on whole words, case-insensitive.
var outOfScopeKeywords = []string{
	"balance sheet",
	"cash flow",
	"dcf",
	"discounted cash flow",
	"stock price",
	"share price",
	"market cap",
	"options",
	"derivatives",
	"risk factor",
	"dividend",
	"book value",
	"assets",
	"liabilities",
	"equity",
	"debt",
	"working capital",
}

var scopePatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(outOfScopeKeywords))
	for i, kw := range outOfScopeKeywords {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
	}
	return out
}()

// ScopeError reports a query about an unsupported topic.
type ScopeError struct {
	Keyword string
}

// Error returns the user-facing explanation.
func (e *ScopeError) Error() string {
	return fmt.Sprintf("This query appears to be about '%s', which is outside the current scope. "+
		"This tool supports income statement analysis only: revenue, net income, EPS, gross margin, "+
		"and operating income from 10-K and 10-Q filings.", e.Keyword)
}

// Unwrap lets errors.Is match ErrOutOfScope.
func (e *ScopeError) Unwrap() error { return ErrOutOfScope }

// Sanitize truncates input to maxLen runes, strips control characters and
// trims surrounding whitespace. A non-positive maxLen uses
// DefaultMaxQueryLength.
func Sanitize(input string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxQueryLength
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	if utf8.RuneCountInString(input) > maxLen {
		input = string([]rune(input)[:maxLen])
	}
	return strings.TrimSpace(controlChars.ReplaceAllString(input, ""))
}

// CheckScope returns a *ScopeError when message mentions an unsupported
// topic. The first keyword in list order wins.
func CheckScope(message string) error {
	for i, re := range scopePatterns {
		if re.MatchString(message) {
			return &ScopeError{Keyword: outOfScopeKeywords[i]}
		}
	}
	return nil
}
