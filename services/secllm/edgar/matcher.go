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
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

// FilingMatcher chooses which reported fact answers a request.
//
// Fiscal years do not line up with calendar years and one filing carries
// several periods, so deciding which fact is "FY2024" is a policy. The
// gateway delegates that decision here.
type FilingMatcher interface {
	// Match returns the fact for req among facts of one concept, or false.
	Match(facts []Fact, req Request) (Fact, bool)
}

// Duration windows for income-statement facts. Fiscal years run 52 or 53
// weeks; fiscal quarters 13 or 14 weeks.
const (
	minAnnual    = 330 * 24 * time.Hour
	maxAnnual    = 380 * 24 * time.Hour
	minQuarterly = 80 * 24 * time.Hour
	maxQuarterly = 100 * 24 * time.Hour
)

// DefaultMatcher is the standard policy.
//
// A fact qualifies when its form is the requested form (amendments
// included), its fiscal-period tag is FY or Qn, and its duration is one
// year or one quarter. Among qualifying facts tagged with the requested
// fiscal year, the latest period end wins, which skips the comparative
// columns a filing repeats from earlier years. Ties go to the latest
// filing date so amendments supersede originals.
//
// When no fact carries the requested fiscal-year tag, facts whose period
// ends inside that calendar year are used instead. Some filers tag every
// fact with the year the filing was made.
type DefaultMatcher struct{}

// Match implements FilingMatcher.
func (DefaultMatcher) Match(facts []Fact, req Request) (Fact, bool) {
	wantFP := "FY"
	if !req.Period.IsAnnual() {
		wantFP = fmt.Sprintf("Q%d", req.Period.Quarter)
	}

	var tagged, byEnd []Fact
	for _, f := range facts {
		if !formMatches(f.Form, req.FilingType) || !durationMatches(f, req.Period) {
			continue
		}
		if f.FiscalYear == req.Period.Year && f.FiscalPeriod == wantFP {
			tagged = append(tagged, f)
		} else if req.Period.IsAnnual() && strings.HasPrefix(f.End, fmt.Sprintf("%04d-", req.Period.Year)) {
			byEnd = append(byEnd, f)
		}
	}
	if best, ok := latest(tagged); ok {
		return best, true
	}
	return latest(byEnd)
}

func formMatches(form string, want datatypes.FilingType) bool {
	return form == string(want) || form == string(want)+"/A"
}

func durationMatches(f Fact, p datatypes.FiscalPeriod) bool {
	d := f.Duration()
	if p.IsAnnual() {
		return d >= minAnnual && d <= maxAnnual
	}
	return d >= minQuarterly && d <= maxQuarterly
}

// latest returns the fact with the greatest End, then the greatest Filed.
// ISO dates compare correctly as strings.
func latest(facts []Fact) (Fact, bool) {
	if len(facts) == 0 {
		return Fact{}, false
	}
	best := facts[0]
	for _, f := range facts[1:] {
		if f.End > best.End || (f.End == best.End && f.Filed > best.Filed) {
			best = f
		}
	}
	return best, true
}
