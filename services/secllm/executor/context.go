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
	"strconv"
	"strings"

	"github.com/AleutianAI/secllm/services/secllm/compute"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// ExecutionContext maps step ids to their outputs for one run. It is
// created by Execute and discarded with it.
type ExecutionContext struct {
	outputs map[int]Output
	status  map[int]Status
	// root failure behind a failed or skipped step
	blocker map[int]int
}

func newExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		outputs: make(map[int]Output),
		status:  make(map[int]Status),
		blocker: make(map[int]int),
	}
}

func (c *ExecutionContext) store(id int, out Output) {
	c.outputs[id] = out
	c.status[id] = StatusSucceeded
}

func (c *ExecutionContext) fail(id int) {
	c.status[id] = StatusFailed
	c.blocker[id] = id
}

func (c *ExecutionContext) skip(id, blocker int) {
	c.status[id] = StatusSkipped
	c.blocker[id] = blocker
}

// blockedBy returns the failed step behind the first dependency, in
// ascending id order, that did not succeed.
func (c *ExecutionContext) blockedBy(deps []int) (int, bool) {
	for _, d := range deps {
		if c.status[d] != StatusSucceeded {
			if b, ok := c.blocker[d]; ok {
				return b, true
			}
			return d, true
		}
	}
	return 0, false
}

// Lookup returns the output of a succeeded step.
func (c *ExecutionContext) Lookup(id int) (Output, bool) {
	out, ok := c.outputs[id]
	return out, ok
}

// argValue is a resolved scalar argument. Text is always set; Number is
// set when the value is numeric. Null literals have neither.
type argValue struct {
	text   string
	number *float64
	null   bool
}

// resolvedArgs holds a step's arguments after reference resolution.
// List parameters are stored in lists, scalars in scalars.
type resolvedArgs struct {
	scalars map[string]argValue
	lists   map[string][]argValue
}

func (a resolvedArgs) text(name string) string {
	return strings.TrimSpace(a.scalars[name].text)
}

func (c *ExecutionContext) resolveArgs(step plan.Step) (resolvedArgs, error) {
	out := resolvedArgs{scalars: make(map[string]argValue), lists: make(map[string][]argValue)}
	for _, arg := range step.Args {
		switch v := arg.Value.(type) {
		case plan.List:
			items := make([]argValue, 0, len(v.Items))
			for _, it := range v.Items {
				av, err := c.resolveScalar(it)
				if err != nil {
					return resolvedArgs{}, fmt.Errorf("%s: %w", arg.Name, err)
				}
				items = append(items, av)
			}
			out.lists[arg.Name] = items
		default:
			av, err := c.resolveScalar(v)
			if err != nil {
				return resolvedArgs{}, fmt.Errorf("%s: %w", arg.Name, err)
			}
			out.scalars[arg.Name] = av
		}
	}
	return out, nil
}

func (c *ExecutionContext) resolveScalar(v plan.Value) (argValue, error) {
	switch t := v.(type) {
	case plan.Literal:
		if t.IsNull() {
			return argValue{null: true}, nil
		}
		av := argValue{text: t.Raw}
		if f, err := t.Float(); err == nil {
			av.number = &f
		}
		return av, nil

	case plan.Reference:
		return c.resolveReference(t)
	}
	return argValue{}, fmt.Errorf("%w: unsupported value %T", ErrResolution, v)
}

func (c *ExecutionContext) resolveReference(ref plan.Reference) (argValue, error) {
	out, ok := c.outputs[ref.StepID]
	if !ok {
		return argValue{}, fmt.Errorf("%w: %s: step %d has no result", ErrResolution, ref, ref.StepID)
	}
	decl, ok := out.Tool().Output(ref.Field)
	if !ok {
		return argValue{}, fmt.Errorf("%w: %s: %s has no field %q", ErrResolution, ref, out.Tool(), ref.Field)
	}

	if decl.Type == plan.FieldNumber {
		n, ok := out.Number(ref.Field)
		if !ok || n == nil {
			return argValue{}, fmt.Errorf("%w: %s: step %d reported no %s", ErrResolution, ref, ref.StepID, ref.Field)
		}
		return argValue{text: strconv.FormatFloat(*n, 'f', -1, 64), number: n}, nil
	}

	s, ok := out.Text(ref.Field)
	if !ok {
		return argValue{}, fmt.Errorf("%w: %s: field %q is absent", ErrResolution, ref, ref.Field)
	}
	return argValue{text: s}, nil
}

// bindOperands maps resolved arguments onto registry operands using the
// tool's parameter declarations.
func bindOperands(tool plan.ToolName, args resolvedArgs) (compute.Operands, error) {
	ops := compute.Operands{
		Numbers: make(map[string]*float64),
		Labels:  make(map[string]string),
	}
	for _, p := range tool.Params() {
		if p.List {
			items, ok := args.lists[p.Name]
			if !ok {
				continue
			}
			for i, it := range items {
				if !p.Numeric {
					ops.Periods = append(ops.Periods, it.text)
					continue
				}
				if !it.null && it.number == nil {
					return compute.Operands{}, fmt.Errorf("%w: %s[%d] = %q is not a number", compute.ErrInvalidInput, p.Name, i, it.text)
				}
				ops.Series = append(ops.Series, it.number)
			}
			continue
		}

		v, ok := args.scalars[p.Name]
		if !ok {
			continue
		}
		if p.Numeric {
			if !v.null && v.number == nil {
				return compute.Operands{}, fmt.Errorf("%w: %s = %q is not a number", compute.ErrInvalidInput, p.Name, v.text)
			}
			ops.Numbers[p.Name] = v.number
			continue
		}
		ops.Labels[p.Name] = v.text
	}
	return ops, nil
}

// statementRequest builds the gateway request of a get_income_statement
// step. The period comes from fiscal_period when given, else from
// fiscal_year; a separate quarter argument narrows an annual period.
func statementRequest(args resolvedArgs) (edgar.Request, error) {
	var period datatypes.FiscalPeriod
	if fp := args.text("fiscal_period"); fp != "" {
		p, err := datatypes.ParseFiscalPeriod(fp)
		if err != nil {
			return edgar.Request{}, fmt.Errorf("%w: %v", edgar.ErrInvalidRequest, err)
		}
		period = p
	} else {
		fy := strings.TrimPrefix(strings.ToUpper(args.text("fiscal_year")), "FY")
		year, err := strconv.Atoi(strings.TrimSpace(fy))
		if err != nil {
			return edgar.Request{}, fmt.Errorf("%w: fiscal_year %q", edgar.ErrInvalidRequest, args.text("fiscal_year"))
		}
		period.Year = year
	}

	if q := args.text("quarter"); q != "" && period.IsAnnual() {
		n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(q), "Q"))
		if err != nil {
			return edgar.Request{}, fmt.Errorf("%w: quarter %q", edgar.ErrInvalidRequest, q)
		}
		period.Quarter = n
	}
	if err := period.Validate(); err != nil {
		return edgar.Request{}, fmt.Errorf("%w: %v", edgar.ErrInvalidRequest, err)
	}

	return edgar.NewRequest(args.text("ticker"), args.text("filing_type"), period)
}
