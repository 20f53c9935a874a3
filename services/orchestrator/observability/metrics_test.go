// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestMetrics creates Metrics on an isolated registry so tests do not
// collide with the global one.
func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	m, _ := newTestMetrics(t)
	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/company/:ticker", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, ticker := range []string{"AAPL", "MSFT"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/company/"+ticker, nil)
		router.ServeHTTP(w, req)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/company/:ticker", "GET", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightRequests))
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m, _ := newTestMetrics(t)
	router := gin.New()
	router.Use(m.Middleware())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/nope", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("unmatched", "GET", "404")))
}

func TestRecordAnswer(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordAnswer(&datatypes.AnalysisResponse{
		Guardrails: datatypes.GuardrailInfo{UnverifiedNumbers: []string{"5.1%", "46.2%"}, LLMComputedMath: true},
	})
	m.RecordAnswer(&datatypes.AnalysisResponse{NeedsClarification: true})
	m.RecordAnswer(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnswersTotal.WithLabelValues("answered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnswersTotal.WithLabelValues("clarification")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.UnverifiedNumbersTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMComputedMathTotal))
}

func TestRecordError(t *testing.T) {
	m, _ := newTestMetrics(t)
	m.RecordError("/api/chat", ErrorCodeNotFound)
	m.RecordError("/api/chat", ErrorCodeNotFound)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("/api/chat", "not_found")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordError("/api/chat", ErrorCodeInternal)
		m.RecordAnswer(&datatypes.AnalysisResponse{})

		router := gin.New()
		router.Use(m.Middleware())
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestHandler_ExposesNamespace(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.RecordError("/api/chat", ErrorCodeTimeout)

	router := gin.New()
	router.GET("/metrics", Handler(reg))
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "secllm_http_errors_total"))
}
