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
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Value is a plan argument value. It is exactly one of Literal, Reference
// or List; the set is closed.
type Value interface {
	// String renders the value in plan wire syntax.
	String() string
	isValue()
}

// Literal is a value given directly in the plan.
type Literal struct {
	Raw string
}

// Reference takes field Field from the output of step StepID.
type Reference struct {
	StepID int
	Field  string
}

// List is an ordered sequence of literals and references.
type List struct {
	Items []Value
}

func (Literal) isValue()   {}
func (Reference) isValue() {}
func (List) isValue()      {}

// String implements Value.
func (l Literal) String() string { return l.Raw }

// String implements Value.
func (r Reference) String() string { return fmt.Sprintf("$step:%d:%s", r.StepID, r.Field) }

// String implements Value.
func (l List) String() string {
	items := make([]string, len(l.Items))
	for i, it := range l.Items {
		items[i] = it.String()
	}
	b, _ := json.Marshal(items)
	return string(b)
}

// IsNull reports whether the literal spells an absent value.
func (l Literal) IsNull() bool {
	switch strings.ToLower(strings.TrimSpace(l.Raw)) {
	case "", "null", "none", "nil", "n/a":
		return true
	}
	return false
}

// Float parses the literal as a number. Thousands separators, a leading
// "$" and surrounding whitespace are accepted.
func (l Literal) Float() (float64, error) {
	s := strings.TrimSpace(l.Raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	return strconv.ParseFloat(s, 64)
}

// References returns every reference held by v, including list items.
func References(v Value) []Reference {
	switch t := v.(type) {
	case Reference:
		return []Reference{t}
	case List:
		var out []Reference
		for _, it := range t.Items {
			out = append(out, References(it)...)
		}
		return out
	}
	return nil
}

var referencePattern = regexp.MustCompile(`^\$step:?(\d+)[:.]([A-Za-z_][A-Za-z0-9_]*)$`)

// ParseValue turns a wire string into a Value.
//
// "$step:N:field" (also "$stepN.field") is a Reference. A string starting
// with "[" is a JSON array whose string or number items are parsed the
// same way into a List. Anything else is a Literal. Nested lists are
// rejected.
func ParseValue(raw string) (Value, error) {
	return parseValue(raw, true)
}

func parseValue(raw string, allowList bool) (Value, error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "$step"):
		m := referencePattern.FindStringSubmatch(s)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedReference, raw)
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedReference, raw)
		}
		return Reference{StepID: id, Field: strings.ToLower(m[2])}, nil

	case strings.HasPrefix(s, "["):
		if !allowList {
			return nil, fmt.Errorf("%w: nested list %q", ErrMalformedArg, raw)
		}
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, fmt.Errorf("%w: list %q: %v", ErrMalformedArg, raw, err)
		}
		list := List{Items: make([]Value, 0, len(items))}
		for _, it := range items {
			text, err := rawText(it)
			if err != nil {
				return nil, fmt.Errorf("%w: list item %s: %v", ErrMalformedArg, it, err)
			}
			v, err := parseValue(text, false)
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, v)
		}
		return list, nil
	}
	return Literal{Raw: raw}, nil
}

// rawText converts a JSON string, number, bool or null into wire text.
func rawText(b json.RawMessage) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return "", fmt.Errorf("empty value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{':
		return "", fmt.Errorf("objects are not allowed")
	case '[':
		return string(b), nil
	case 'n':
		return "", nil
	}
	return string(b), nil
}

// RawValue is an argument value as it appears in plan JSON. Language
// models emit strings; hand-written plans may also use numbers, booleans,
// null or arrays, which are normalized to wire text.
type RawValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *RawValue) UnmarshalJSON(b []byte) error {
	s, err := rawText(b)
	if err != nil {
		return err
	}
	*v = RawValue(s)
	return nil
}
