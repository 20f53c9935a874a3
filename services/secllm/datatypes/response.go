// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// ChartType selects how the frontend renders a visualization.
type ChartType string

const (
	ChartSingleValue ChartType = "single_value"
	ChartComparison  ChartType = "comparison"
	ChartTimeSeries  ChartType = "timeseries"
)

// SourceCitation points at the filing a number came from.
type SourceCitation struct {
	Ticker       string `json:"ticker"`
	FilingType   string `json:"filing_type"`
	FilingDate   string `json:"filing_date,omitempty"`
	FiscalPeriod string `json:"fiscal_period"`
	URL          string `json:"url,omitempty"`
}

// DataPoint is one labelled value in a chart series.
type DataPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// VisualizationPayload is the chart description sent to clients.
type VisualizationPayload struct {
	ChartType ChartType   `json:"chart_type"`
	Metric    string      `json:"metric"`
	Data      []DataPoint `json:"data"`
}

// GuardrailInfo reports the outcome of post-hoc narrative verification.
type GuardrailInfo struct {
	LLMComputedMath   bool     `json:"llm_computed_math"`
	UnverifiedNumbers []string `json:"unverified_numbers"`
	NumbersChecked    int      `json:"numbers_checked"`
}

// StepReport summarizes one plan step for the response.
type StepReport struct {
	StepID    int    `json:"step_id"`
	Tool      string `json:"tool"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	SkippedBy int    `json:"skipped_by,omitempty"`
}

// AnalysisResponse is the assembled answer to a chat query.
type AnalysisResponse struct {
	RunID              string                `json:"run_id,omitempty"`
	RawData            []map[string]any      `json:"raw_data"`
	Computations       []map[string]any      `json:"computations"`
	Summary            string                `json:"summary"`
	Citations          []SourceCitation      `json:"citations"`
	Visualization      *VisualizationPayload `json:"visualization,omitempty"`
	Guardrails         GuardrailInfo         `json:"guardrails"`
	Steps              []StepReport          `json:"steps,omitempty"`
	NeedsClarification bool                  `json:"needs_clarification"`
	FollowUpQuestion   string                `json:"follow_up_question,omitempty"`
}
