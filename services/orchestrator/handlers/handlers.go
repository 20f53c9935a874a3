// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides the HTTP request handlers for the API.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/secllm/services/orchestrator/observability"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// QueryProcessor answers questions and runs caller-supplied plans.
// *pipeline.Pipeline implements it.
type QueryProcessor interface {
	Process(ctx context.Context, q datatypes.UserQuery) (*datatypes.AnalysisResponse, error)
	ExecutePlan(ctx context.Context, raw plan.RawPlan, narrative string) (*datatypes.AnalysisResponse, error)
}

// ExecutePlanRequest is the body of POST /api/plan/execute.
type ExecutePlanRequest struct {
	Plan plan.RawPlan `json:"plan"`

	// Narrative, when set, is checked against the run's truth set.
	Narrative string `json:"narrative,omitempty" binding:"max=20000"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleChat answers POST /api/chat.
//
// # Description
//
// Binds a datatypes.UserQuery and runs it through the pipeline. A request
// that needs clarification is a 200 with needs_clarification set.
//
// # Outputs
//
//   - 200: datatypes.AnalysisResponse
//   - 4xx/5xx: ErrorResponse, status per Classify
func HandleChat(p QueryProcessor, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q datatypes.UserQuery
		if err := c.ShouldBindJSON(&q); err != nil {
			abortBadRequest(c, m, "invalid request body: "+err.Error())
			return
		}

		resp, err := p.Process(c.Request.Context(), q)
		if err != nil {
			abortWithError(c, m, err)
			return
		}
		m.RecordAnswer(resp)
		c.JSON(http.StatusOK, resp)
	}
}

// HandleExecutePlan answers POST /api/plan/execute by running the plan in
// the body without the clarifier, planner or summarizer. Steps that fail
// are reported in the response rather than as an error status.
func HandleExecutePlan(p QueryProcessor, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExecutePlanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortBadRequest(c, m, "invalid request body: "+err.Error())
			return
		}

		resp, err := p.ExecutePlan(c.Request.Context(), req.Plan, req.Narrative)
		if err != nil {
			abortWithError(c, m, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleCompany answers GET /api/company/:ticker with the registrant's
// name and CIK.
func HandleCompany(lookup edgar.CompanyLookup, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		company, err := lookup.Company(c.Request.Context(), c.Param("ticker"))
		if err != nil {
			abortWithError(c, m, err)
			return
		}
		c.JSON(http.StatusOK, company)
	}
}
