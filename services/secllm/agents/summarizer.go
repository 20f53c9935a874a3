// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/secllm/services/llm"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

// summaryTemperature leaves some room for phrasing; numbers are pinned by
// the prompt and checked afterwards.
const summaryTemperature = 0.3

// SummaryInput is what the summarizer narrates.
type SummaryInput struct {
	Query        *datatypes.ClarifiedQuery
	RawData      []map[string]any
	Computations []map[string]any
	Failures     []datatypes.StepReport
}

// Summarizer narrates executor output.
type Summarizer struct {
	client llm.LLMClient
}

// NewSummarizer creates a Summarizer over client.
func NewSummarizer(client llm.LLMClient) (*Summarizer, error) {
	if client == nil {
		return nil, errors.New("summarizer requires an llm client")
	}
	return &Summarizer{client: client}, nil
}

// Summarize returns the narrative for in.
func (s *Summarizer) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	content, err := summaryRequest(in)
	if err != nil {
		return "", err
	}
	msgs := []llm.Message{llm.System(summarizerPrompt), llm.User(content)}
	out, err := s.client.Generate(ctx, msgs, llm.Temperature(summaryTemperature))
	if err != nil {
		return "", fmt.Errorf("summarizer agent: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func summaryRequest(in SummaryInput) (string, error) {
	var b strings.Builder
	if in.Query != nil {
		metrics := make([]string, len(in.Query.Metrics))
		for i, m := range in.Query.Metrics {
			metrics[i] = string(m)
		}
		fmt.Fprintf(&b, "Query: %s\nTicker: %s\nMetrics: %s\n\n", in.Query.OriginalMessage, in.Query.Ticker, strings.Join(metrics, ", "))
	}

	sections := []struct {
		title string
		v     any
	}{
		{"Raw data", in.RawData},
		{"Computations", in.Computations},
	}
	for _, sec := range sections {
		j, err := json.MarshalIndent(sec.v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", strings.ToLower(sec.title), err)
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", sec.title, j)
	}

	if len(in.Failures) > 0 {
		b.WriteString("Steps that could not complete:\n")
		for _, f := range in.Failures {
			if f.Status == "skipped" {
				fmt.Fprintf(&b, "- step %d (%s) skipped because step %d failed\n", f.StepID, f.Tool, f.SkippedBy)
				continue
			}
			fmt.Fprintf(&b, "- step %d (%s) failed: %s\n", f.StepID, f.Tool, f.Error)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
