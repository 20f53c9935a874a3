// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents holds the three model-backed stages around plan
// execution: the Clarifier extracts structured intent from free text, the
// Planner turns that intent into a validated ExecutionPlan, and the
// Summarizer narrates executor output without doing arithmetic.
//
// System prompts are embedded into the binary. The planner prompt is
// completed at init with a catalog generated from the plan tool table, so
// the model is always told exactly the tools and fields Parse accepts.
package agents

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/AleutianAI/secllm/services/secllm/plan"
)

//go:embed prompts/clarifier.txt
var clarifierPrompt string

//go:embed prompts/planner.txt
var plannerPromptHeader string

//go:embed prompts/summarizer.txt
var summarizerPrompt string

var plannerPrompt = plannerPromptHeader + toolCatalog()

// toolCatalog lists every tool with its parameters and output fields.
func toolCatalog() string {
	var b strings.Builder
	for _, tool := range plan.Tools() {
		params := make([]string, 0, len(tool.Params()))
		for _, p := range tool.Params() {
			s := p.Name
			if p.List {
				s += "[]"
			}
			if p.Required {
				s += " (required)"
			}
			params = append(params, s)
		}
		outputs := make([]string, 0, len(tool.Outputs()))
		for _, o := range tool.Outputs() {
			outputs = append(outputs, o.Name)
		}
		fmt.Fprintf(&b, "- %s(%s) -> %s\n", tool, strings.Join(params, ", "), strings.Join(outputs, ", "))
	}
	return b.String()
}
