// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

// =============================================================================
// Mode Tests
// =============================================================================

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"styled", ModeStyled, false},
		{"PLAIN", ModePlain, false},
		{"text", ModePlain, false},
		{"json", ModeJSON, false},
		{"auto", ModePlain, false}, // nil file is never a terminal
		{"", ModePlain, false},
		{"fancy", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectMode_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, ModePlain, DetectMode(nil))
}

// =============================================================================
// Printer Tests
// =============================================================================

func TestPrinter_PlainStatusLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModePlain)

	p.Success("cached")
	p.Warning("slow")
	p.Error("failed")

	assert.Equal(t, "OK: cached\nWARN: slow\nERROR: failed\n", buf.String())
}

func TestPrinter_JSONSuppressesDecoration(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeJSON)

	p.Title("title")
	p.Success("ok")
	p.Box("box", "content")

	assert.Empty(t, buf.String())
}

func TestPrinter_StyledBox(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, ModeStyled).Box("Answer", "Revenue was $391.04B")

	assert.Contains(t, buf.String(), "Answer")
	assert.Contains(t, buf.String(), "Revenue was $391.04B")
	assert.Contains(t, buf.String(), "╭", "rounded border")
}

// =============================================================================
// Answer Tests
// =============================================================================

func sampleAnswer() *datatypes.AnalysisResponse {
	return &datatypes.AnalysisResponse{
		Summary: "Apple's revenue grew 2.02% from FY2023 to FY2024.",
		Computations: []map[string]any{
			{"formula": "(391035000000 - 383285000000) / 383285000000 * 100 = 2.02%"},
		},
		Citations: []datatypes.SourceCitation{{
			Ticker: "AAPL", FilingType: "10-K", FiscalPeriod: "FY2024",
			FilingDate: "2024-11-01", URL: "https://www.sec.gov/Archives/edgar/data/320193/000032019324000123/",
		}},
		Visualization: &datatypes.VisualizationPayload{
			ChartType: datatypes.ChartComparison,
			Metric:    "revenue",
			Data: []datatypes.DataPoint{
				{Label: "FY2023", Value: 383285000000},
				{Label: "FY2024", Value: 391035000000},
			},
		},
		Guardrails: datatypes.GuardrailInfo{NumbersChecked: 3, UnverifiedNumbers: []string{}},
		Steps: []datatypes.StepReport{
			{StepID: 1, Tool: "get_income_statement", Status: "completed"},
		},
	}
}

func TestAnswer_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, ModePlain).Answer(sampleAnswer()))
	out := buf.String()

	assert.Contains(t, out, "Apple's revenue grew 2.02%")
	assert.Contains(t, out, "Revenue (comparison)")
	assert.Contains(t, out, "FY2024")
	assert.Contains(t, out, "$391.04B")
	assert.Contains(t, out, "= 2.02%")
	assert.Contains(t, out, "AAPL 10-K FY2024 filed 2024-11-01")
	assert.Contains(t, out, "OK: all 3 numbers verified")
	assert.NotContains(t, out, "Steps", "step table only shows on failure")
	assert.NotContains(t, out, "\x1b[", "plain mode has no escapes")
}

func TestAnswer_UnverifiedAndFailedSteps(t *testing.T) {
	resp := sampleAnswer()
	resp.Guardrails = datatypes.GuardrailInfo{
		NumbersChecked:    4,
		UnverifiedNumbers: []string{"12.5%"},
		LLMComputedMath:   true,
	}
	resp.Steps = append(resp.Steps,
		datatypes.StepReport{StepID: 2, Tool: "get_income_statement", Status: "failed", Error: "filing not found"},
		datatypes.StepReport{StepID: 3, Tool: "calculate_growth", Status: "skipped", SkippedBy: 2},
	)

	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, ModePlain).Answer(resp))
	out := buf.String()

	assert.Contains(t, out, "WARN: 1 of 4 numbers not found in source data: 12.5%")
	assert.Contains(t, out, "WARN: summary contains arithmetic")
	assert.Contains(t, out, "ERROR: step 2 get_income_statement: failed (filing not found)")
	assert.Contains(t, out, "WARN: step 3 calculate_growth: skipped (after step 2 failed)")
}

func TestAnswer_Clarification(t *testing.T) {
	var buf bytes.Buffer
	err := NewPrinter(&buf, ModePlain).Answer(&datatypes.AnalysisResponse{
		NeedsClarification: true,
		FollowUpQuestion:   "Which company do you mean?",
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Which company do you mean?")
	assert.NotContains(t, buf.String(), "Answer")
}

func TestAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, ModeJSON).Answer(sampleAnswer()))

	var got datatypes.AnalysisResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleAnswer().Summary, got.Summary)
}

func TestChart_ScalesToPeak(t *testing.T) {
	p := NewPrinter(&bytes.Buffer{}, ModePlain)
	out := p.chart(&datatypes.VisualizationPayload{
		Metric: "net_income",
		Data: []datatypes.DataPoint{
			{Label: "Q1", Value: 50},
			{Label: "Q2", Value: 100},
		},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, chartWidth/2, strings.Count(lines[0], "█"))
	assert.Equal(t, chartWidth, strings.Count(lines[1], "█"))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		metric string
		v      float64
		want   string
	}{
		{"revenue", 391035000000, "$391.04B"},
		{"revenue", 2.5e12, "$2.50T"},
		{"net_income", -12300000, "-$12.30M"},
		{"net_income", 45000, "$45,000"},
		{"gross_margin", 46.21, "46.21%"},
		{"gross_margin", 180683000000, "$180.68B"},
		{"revenue_growth", -3.5, "-3.50%"},
		{"eps", 6.11, "$6.11"},
	}
	for _, tt := range tests {
		t.Run(tt.metric+"/"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.metric, tt.v))
		})
	}
}

func TestMetricLabel(t *testing.T) {
	assert.Equal(t, "Gross Margin", metricLabel("gross_margin"))
	assert.Equal(t, "EPS", metricLabel("eps"))
	assert.Equal(t, "Value", metricLabel(""))
}

func TestCompany(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, ModePlain).Company(datatypes.Company{Ticker: "AAPL", Name: "Apple Inc.", CIK: "0000320193"}))
	assert.Equal(t, "AAPL\nApple Inc.\nCIK 0000320193\n", buf.String())
}

// =============================================================================
// Spinner Tests
// =============================================================================

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinner_DisabledOutsideStyled(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, ModePlain, "thinking")
	s.Start()
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	assert.Empty(t, buf.String())
}

func TestSpinner_AnimatesAndClears(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, ModeStyled, "planning")
	s.interval = time.Millisecond
	s.Start()
	s.Start()

	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "planning")
	}, time.Second, time.Millisecond)

	s.Update("executing")
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "executing")
	}, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	assert.True(t, strings.HasSuffix(buf.String(), "\r\033[K"))
}
