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
	"slices"
)

// MaxSteps bounds the number of steps in one plan.
const MaxSteps = 10

// RawArg is one argument in plan JSON. Name may be empty, in which case
// the argument binds to the next unbound parameter in declaration order.
type RawArg struct {
	Name  string   `json:"name"`
	Value RawValue `json:"value"`
}

// RawStep is one step in plan JSON.
type RawStep struct {
	StepID      int      `json:"step_id"`
	Tool        string   `json:"tool"`
	Args        []RawArg `json:"args"`
	DependsOn   []int    `json:"depends_on"`
	Description string   `json:"description"`
}

// RawPlan is the unvalidated plan as produced by the planner or read from
// a file.
type RawPlan struct {
	Steps     []RawStep `json:"steps"`
	Reasoning string    `json:"reasoning"`
}

// Arg is a validated argument bound to a declared parameter name.
type Arg struct {
	Name  string
	Value Value
}

// Step is one validated tool invocation.
type Step struct {
	ID          int
	Tool        ToolName
	Args        []Arg
	DependsOn   []int
	Description string
}

// Arg returns the value bound to a parameter.
func (s Step) Arg(name string) (Value, bool) {
	for _, a := range s.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// ExecutionPlan is a validated, immutable plan. It can only be obtained
// from Parse, so every step's tool, arguments, references and dependency
// edges have been checked.
type ExecutionPlan struct {
	steps     map[int]Step
	order     []int
	deps      map[int][]int
	reasoning string
}

// Len returns the number of steps.
func (p *ExecutionPlan) Len() int { return len(p.order) }

// Reasoning returns the planner's free-text rationale.
func (p *ExecutionPlan) Reasoning() string { return p.reasoning }

// Order returns step ids in execution order.
func (p *ExecutionPlan) Order() []int { return slices.Clone(p.order) }

// Step returns the step with the given id.
func (p *ExecutionPlan) Step(id int) (Step, bool) {
	s, ok := p.steps[id]
	return s, ok
}

// Steps returns all steps in execution order.
func (p *ExecutionPlan) Steps() []Step {
	out := make([]Step, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.steps[id])
	}
	return out
}

// Dependencies returns the deduplicated, ascending ids a step waits on:
// the union of its explicit depends_on and the steps it references.
func (p *ExecutionPlan) Dependencies(id int) []int {
	return slices.Clone(p.deps[id])
}

// Raw converts the plan back to its wire form, in execution order.
func (p *ExecutionPlan) Raw() RawPlan {
	out := RawPlan{Reasoning: p.reasoning}
	for _, s := range p.Steps() {
		rs := RawStep{
			StepID:      s.ID,
			Tool:        string(s.Tool),
			DependsOn:   slices.Clone(s.DependsOn),
			Description: s.Description,
		}
		for _, a := range s.Args {
			rs.Args = append(rs.Args, RawArg{Name: a.Name, Value: RawValue(a.Value.String())})
		}
		out.Steps = append(out.Steps, rs)
	}
	return out
}

// Parse validates a raw plan and builds an ExecutionPlan.
//
// # Description
//
// Validation is exhaustive and happens before anything executes:
//
//   - 1..MaxSteps steps, positive unique ids.
//   - Every tool is in Tools().
//   - Arguments bind to declared parameters; required parameters are
//     present; list parameters get lists and scalar parameters do not.
//   - Every "$step:N:field" string is parsed once into a Reference. N must
//     be an existing step with id smaller than the referencing step, and
//     field must be declared by N's tool.
//   - depends_on names existing steps other than the step itself.
//   - The union of depends_on and reference edges is acyclic.
//
// The execution order is a topological order of that graph with ties
// broken by ascending step id.
//
// # Outputs
//
//   - *ExecutionPlan: the validated plan.
//   - error: a *ValidationError wrapping one of the package sentinels or
//     a *CycleError.
func Parse(raw RawPlan) (*ExecutionPlan, error) {
	if len(raw.Steps) == 0 {
		return nil, &ValidationError{Err: ErrEmptyPlan}
	}
	if len(raw.Steps) > MaxSteps {
		return nil, invalid(0, ErrTooManySteps, "%d steps, limit %d", len(raw.Steps), MaxSteps)
	}

	p := &ExecutionPlan{
		steps:     make(map[int]Step, len(raw.Steps)),
		deps:      make(map[int][]int, len(raw.Steps)),
		reasoning: raw.Reasoning,
	}

	for _, rs := range raw.Steps {
		if rs.StepID <= 0 {
			return nil, invalid(0, ErrInvalidStepID, "got %d", rs.StepID)
		}
		if _, dup := p.steps[rs.StepID]; dup {
			return nil, invalid(rs.StepID, ErrDuplicateStep, "")
		}
		step, err := parseStep(rs)
		if err != nil {
			return nil, err
		}
		p.steps[step.ID] = step
	}

	for _, id := range sortedIDs(p.steps) {
		deps, err := p.resolveEdges(p.steps[id])
		if err != nil {
			return nil, err
		}
		p.deps[id] = deps
	}

	if err := detectCycles(p.steps, p.deps); err != nil {
		return nil, &ValidationError{Err: err}
	}
	p.order = topoOrder(p.steps, p.deps)
	return p, nil
}

func parseStep(rs RawStep) (Step, error) {
	tool, err := ParseToolName(rs.Tool)
	if err != nil {
		return Step{}, &ValidationError{StepID: rs.StepID, Err: ErrUnknownTool, Detail: fmt.Sprintf("%q", rs.Tool)}
	}
	spec := toolSpecs[tool]

	step := Step{
		ID:          rs.StepID,
		Tool:        tool,
		DependsOn:   slices.Clone(rs.DependsOn),
		Description: rs.Description,
	}

	bound := make(map[string]bool, len(rs.Args))
	next := 0
	for _, ra := range rs.Args {
		var param Param
		if ra.Name == "" {
			for next < len(spec.params) && bound[spec.params[next].Name] {
				next++
			}
			if next >= len(spec.params) {
				return Step{}, invalid(rs.StepID, ErrMalformedArg, "too many positional arguments for %s", tool)
			}
			param = spec.params[next]
		} else {
			var ok bool
			param, ok = spec.param(ra.Name)
			if !ok {
				return Step{}, invalid(rs.StepID, ErrMalformedArg, "%s has no parameter %q", tool, ra.Name)
			}
		}
		if bound[param.Name] {
			return Step{}, invalid(rs.StepID, ErrMalformedArg, "parameter %q given twice", param.Name)
		}
		bound[param.Name] = true

		v, err := ParseValue(string(ra.Value))
		if err != nil {
			return Step{}, &ValidationError{StepID: rs.StepID, Err: unwrapSentinel(err), Detail: err.Error()}
		}
		_, isList := v.(List)
		if param.List && !isList {
			// A single reference or literal is a one-element list.
			v = List{Items: []Value{v}}
		} else if !param.List && isList {
			return Step{}, invalid(rs.StepID, ErrMalformedArg, "parameter %q does not take a list", param.Name)
		}
		step.Args = append(step.Args, Arg{Name: param.Name, Value: v})
	}

	for _, prm := range spec.params {
		if prm.Required && !bound[prm.Name] {
			return Step{}, invalid(rs.StepID, ErrMalformedArg, "%s requires %q", tool, prm.Name)
		}
	}
	if len(spec.anyOf) > 0 {
		found := false
		for _, name := range spec.anyOf {
			found = found || bound[name]
		}
		if !found {
			return Step{}, invalid(rs.StepID, ErrMalformedArg, "%s requires one of %v", tool, spec.anyOf)
		}
	}
	return step, nil
}

// resolveEdges checks a step's references and depends_on and returns the
// deduplicated union as a sorted slice.
func (p *ExecutionPlan) resolveEdges(step Step) ([]int, error) {
	set := make(map[int]struct{})

	for _, a := range step.Args {
		for _, ref := range References(a.Value) {
			if ref.StepID >= step.ID {
				return nil, invalid(step.ID, ErrForwardReference, "%s in %q", ref, a.Name)
			}
			target, ok := p.steps[ref.StepID]
			if !ok {
				return nil, invalid(step.ID, ErrUnknownStep, "%s in %q", ref, a.Name)
			}
			if _, ok := target.Tool.Output(ref.Field); !ok {
				return nil, invalid(step.ID, ErrUnknownField, "%s: %s does not produce %q", ref, target.Tool, ref.Field)
			}
			set[ref.StepID] = struct{}{}
		}
	}

	for _, dep := range step.DependsOn {
		if dep == step.ID {
			return nil, &ValidationError{StepID: step.ID, Err: &CycleError{Path: []int{step.ID, step.ID}}}
		}
		if _, ok := p.steps[dep]; !ok {
			return nil, invalid(step.ID, ErrUnknownStep, "depends_on %d", dep)
		}
		set[dep] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

func unwrapSentinel(err error) error {
	for _, s := range []error{ErrMalformedReference, ErrMalformedArg} {
		if errors.Is(err, s) {
			return s
		}
	}
	return ErrMalformedArg
}

func sortedIDs(steps map[int]Step) []int {
	ids := make([]int, 0, len(steps))
	for id := range steps {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
