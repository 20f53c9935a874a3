// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/secllm/services/orchestrator/middleware"
	"github.com/AleutianAI/secllm/services/orchestrator/observability"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

type stubPipeline struct{}

func (stubPipeline) Process(context.Context, datatypes.UserQuery) (*datatypes.AnalysisResponse, error) {
	return &datatypes.AnalysisResponse{Summary: "ok"}, nil
}

func (stubPipeline) ExecutePlan(context.Context, plan.RawPlan, string) (*datatypes.AnalysisResponse, error) {
	return &datatypes.AnalysisResponse{}, nil
}

type stubCompanies struct{}

func (stubCompanies) Company(_ context.Context, ticker string) (datatypes.Company, error) {
	return datatypes.Company{Ticker: ticker, Name: "Apple Inc.", CIK: "0000320193"}, nil
}

func hasRoute(router *gin.Engine, method, path string) bool {
	for _, r := range router.Routes() {
		if r.Method == method && r.Path == path {
			return true
		}
	}
	return false
}

// ============================================================================
// SetupRoutes Tests
// ============================================================================

func TestSetupRoutes_RegistersAPI(t *testing.T) {
	router := gin.New()
	reg := prometheus.NewRegistry()
	SetupRoutes(router, Dependencies{
		Pipeline:  stubPipeline{},
		Companies: stubCompanies{},
		Metrics:   observability.NewMetrics(reg),
		Gatherer:  reg,
	})

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/api/health"},
		{"GET", "/metrics"},
		{"GET", "/api/company/:ticker"},
		{"POST", "/api/chat"},
		{"POST", "/api/plan/execute"},
	}
	for _, e := range expected {
		assert.True(t, hasRoute(router, e.method, e.path), "missing route %s %s", e.method, e.path)
	}
}

func TestSetupRoutes_NoGathererNoMetricsRoute(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Dependencies{Pipeline: stubPipeline{}, Companies: stubCompanies{}})

	assert.False(t, hasRoute(router, "GET", "/metrics"))
}

func TestSetupRoutes_ThrottlesModelRoutesOnly(t *testing.T) {
	router := gin.New()
	SetupRoutes(router, Dependencies{
		Pipeline:  stubPipeline{},
		Companies: stubCompanies{},
		Limiter:   middleware.NewRateLimiter(1),
	})

	post := func() int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"q"}`))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w.Code
	}
	get := func(path string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, get("/api/health"))
		assert.Equal(t, http.StatusOK, get("/api/company/AAPL"))
	}
}
