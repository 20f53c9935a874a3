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
	"fmt"
	"math"
	"strings"
	"sync"
)

// FactKind describes what a truth value measures, so a narrated "2.02%"
// is compared with percentages and not with dollar amounts.
type FactKind int

const (
	FactAmount FactKind = iota + 1
	FactPerShare
	FactPercentage
	FactRate
)

// String returns the kind name.
func (k FactKind) String() string {
	switch k {
	case FactAmount:
		return "amount"
	case FactPerShare:
		return "per_share"
	case FactPercentage:
		return "percentage"
	case FactRate:
		return "rate"
	}
	return "unknown"
}

// KindOf infers the kind of an output field from its name.
func KindOf(field string) FactKind {
	switch {
	case strings.HasSuffix(field, "_percentage"):
		return FactPercentage
	case strings.HasSuffix(field, "_rate"):
		return FactRate
	case strings.HasPrefix(field, "eps"):
		return FactPerShare
	}
	return FactAmount
}

// Fact is one ground-truth number and the step that produced it.
type Fact struct {
	StepID int      `json:"step_id"`
	Field  string   `json:"field"`
	Value  float64  `json:"value"`
	Kind   FactKind `json:"kind"`
}

// TruthSet collects every raw and computed number of one plan run.
//
// The executor adds facts as steps succeed and freezes the set when the
// run ends. After Freeze the set is read-only.
//
// Thread Safety: safe for concurrent use.
type TruthSet struct {
	mu     sync.RWMutex
	facts  []Fact
	frozen bool
}

// NewTruthSet creates an empty, unfrozen set.
func NewTruthSet() *TruthSet {
	return &TruthSet{}
}

// Add records a fact. NaN and infinities are ignored.
func (t *TruthSet) Add(f Fact) error {
	if math.IsNaN(f.Value) || math.IsInf(f.Value, 0) {
		return nil
	}
	if f.Kind == 0 {
		f.Kind = KindOf(f.Field)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frozen {
		return fmt.Errorf("%w: step %d field %s", ErrTruthFrozen, f.StepID, f.Field)
	}
	t.facts = append(t.facts, f)
	return nil
}

// Freeze makes the set read-only.
func (t *TruthSet) Freeze() {
	t.mu.Lock()
	t.frozen = true
	t.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (t *TruthSet) Frozen() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.frozen
}

// Facts returns a copy of the facts in insertion order.
func (t *TruthSet) Facts() []Fact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Fact, len(t.facts))
	copy(out, t.facts)
	return out
}

// Len returns the number of facts.
func (t *TruthSet) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.facts)
}

// FromStep returns the facts produced by one step.
func (t *TruthSet) FromStep(id int) []Fact {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Fact
	for _, f := range t.facts {
		if f.StepID == id {
			out = append(out, f)
		}
	}
	return out
}
