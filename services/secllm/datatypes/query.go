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

// QueryType classifies what the user is asking for.
type QueryType string

const (
	QueryTypeDirectRetrieval  QueryType = "direct_retrieval"
	QueryTypeGrowthComparison QueryType = "growth_comparison"
	QueryTypeTimeSeries       QueryType = "time_series"
)

// QueryMetric is a metric a user can ask about. Unlike MetricName it
// includes derived metrics such as gross_margin.
type QueryMetric string

const (
	QueryMetricRevenue         QueryMetric = "revenue"
	QueryMetricNetIncome       QueryMetric = "net_income"
	QueryMetricEPS             QueryMetric = "eps"
	QueryMetricGrossMargin     QueryMetric = "gross_margin"
	QueryMetricOperatingIncome QueryMetric = "operating_income"
)

// ConversationTurn is one prior message in a chat.
type ConversationTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// UserQuery is the inbound chat request.
type UserQuery struct {
	Message             string             `json:"message" binding:"required,max=2000"`
	ConversationHistory []ConversationTurn `json:"conversation_history,omitempty" binding:"omitempty,max=20,dive"`
}

// ClarifiedQuery is the structured intent extracted from free text.
type ClarifiedQuery struct {
	Ticker          string         `json:"ticker"`
	QueryType       QueryType      `json:"query_type"`
	Metrics         []QueryMetric  `json:"metrics"`
	Periods         []FiscalPeriod `json:"periods"`
	OriginalMessage string         `json:"original_message"`
}

// ClarificationResponse is either a clarified query or a follow-up question.
type ClarificationResponse struct {
	NeedsClarification bool            `json:"needs_clarification"`
	Confidence         float64         `json:"confidence"`
	FollowUpQuestion   string          `json:"follow_up_question,omitempty"`
	ClarifiedQuery     *ClarifiedQuery `json:"clarified_query,omitempty"`
}
