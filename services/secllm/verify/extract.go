// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is a numeric claim found in narrative text.
type Token struct {
	// Text is the claim as written, e.g. "$391.0B" or "2.02%".
	Text string

	// Value is the magnitude after applying any scale word or suffix.
	// It is never negative; direction is carried by words in prose.
	Value float64

	Percent  bool
	Currency bool

	// Precision is half a unit in the last printed digit, scaled. A
	// narrated "$391.0B" stands for anything within 0.05 billion.
	Precision float64
}

var numberPattern = regexp.MustCompile(
	`(\$\s?)?([-+−])?(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)` +
		`(?:\s*(%)|\s*((?i:percent|per cent|trillion|billion|million|thousand|bn|mn))\b|([KMBT])\b)?`)

// Spans removed before number scanning. Each is replaced by spaces.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?(?:,?\s+\d{4})?\b`),
}

var scales = map[string]float64{
	"thousand": 1e3,
	"k":        1e3,
	"million":  1e6,
	"mn":       1e6,
	"m":        1e6,
	"billion":  1e9,
	"bn":       1e9,
	"b":        1e9,
	"trillion": 1e12,
	"t":        1e12,
}

// Extract returns the numeric claims in text, in order of appearance.
//
// Dates, bare years between 1900 and 2100, numbers glued to letters
// ("FY2024", "Q3", "10-K", "3rd") and every occurrence of the ignore
// strings (tickers) are not claims.
func Extract(text string, ignore ...string) []Token {
	scrubbed := text
	for _, re := range datePatterns {
		scrubbed = re.ReplaceAllStringFunc(scrubbed, blank)
	}
	for _, word := range ignore {
		if word = strings.TrimSpace(word); word == "" {
			continue
		}
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		scrubbed = re.ReplaceAllStringFunc(scrubbed, blank)
	}

	var out []Token
	for _, m := range numberPattern.FindAllStringSubmatchIndex(scrubbed, -1) {
		start, end := m[0], m[1]
		if glued(scrubbed, start, end) {
			continue
		}

		currency := m[2] >= 0
		digits := scrubbed[m[6]:m[7]]
		percent := m[8] >= 0 || (m[10] >= 0 && isPercentWord(scrubbed[m[10]:m[11]]))
		scaleWord := ""
		switch {
		case m[10] >= 0 && !percent:
			scaleWord = strings.ToLower(scrubbed[m[10]:m[11]])
		case m[12] >= 0:
			scaleWord = strings.ToLower(scrubbed[m[12]:m[13]])
		}

		plain := strings.ReplaceAll(digits, ",", "")
		v, err := strconv.ParseFloat(plain, 64)
		if err != nil {
			continue
		}
		if !currency && !percent && scaleWord == "" && isYear(plain, v) {
			continue
		}

		decimals := 0
		if i := strings.IndexByte(plain, '.'); i >= 0 {
			decimals = len(plain) - i - 1
		}
		scale := 1.0
		if scaleWord != "" {
			scale = scales[scaleWord]
		}

		out = append(out, Token{
			Text:      strings.TrimSpace(text[start:end]),
			Value:     v * scale,
			Percent:   percent,
			Currency:  currency,
			Precision: 0.5 * math.Pow10(-decimals) * scale,
		})
	}
	return out
}

func blank(s string) string {
	return strings.Repeat(" ", len(s))
}

func isPercentWord(s string) bool {
	s = strings.ToLower(s)
	return s == "percent" || s == "per cent"
}

func isYear(plain string, v float64) bool {
	return len(plain) == 4 && !strings.Contains(plain, ".") && v >= 1900 && v <= 2100
}

// glued reports whether the match is part of an identifier such as
// "FY2024", "Q3", "10-K" or "S-1" rather than a standalone number.
func glued(s string, start, end int) bool {
	if start > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return true
		}
		if r == '-' && start-size > 0 {
			prev, _ := utf8.DecodeLastRuneInString(s[:start-size])
			if unicode.IsLetter(prev) {
				return true
			}
		}
	}
	if end < len(s) {
		r, size := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return true
		}
		if r == '-' && end+size < len(s) {
			next, _ := utf8.DecodeRuneInString(s[end+size:])
			if unicode.IsLetter(next) {
				return true
			}
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
