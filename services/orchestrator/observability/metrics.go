// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the HTTP API.
//
// # Description
//
// Metrics include:
//   - Request counters and latency histograms by route and status
//   - In-flight request gauge
//   - Answer outcomes (answered, clarification)
//   - Guardrail counters (unverified numbers, LLM-computed math)
//   - Errors by route and error code
//
// Metrics are exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Every method is a no-op on a nil *Metrics so handlers can run without
// instrumentation in tests.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/secllm/services/secllm/datatypes"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "secllm"

// Subsystem for HTTP metrics
const httpSubsystem = "http"

// Subsystem for answer-quality metrics
const answerSubsystem = "answer"

// Metrics holds all Prometheus metrics for the API.
//
// # Fields
//
//   - RequestsTotal: Counter of requests by route, method, and status
//   - RequestDurationSeconds: Histogram of request latency by route
//   - InFlightRequests: Gauge of requests being served
//   - AnswersTotal: Counter of chat outcomes
//   - UnverifiedNumbersTotal: Counter of narrative numbers not in the truth set
//   - LLMComputedMathTotal: Counter of answers whose narrative did arithmetic
//   - ErrorsTotal: Counter of errors by route and error code
type Metrics struct {
	// Labels: route, method, status
	RequestsTotal *prometheus.CounterVec

	// Labels: route
	RequestDurationSeconds *prometheus.HistogramVec

	InFlightRequests prometheus.Gauge

	// Labels: outcome (answered, clarification)
	AnswersTotal *prometheus.CounterVec

	UnverifiedNumbersTotal prometheus.Counter

	LLMComputedMathTotal prometheus.Counter

	// Labels: route, error_code
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with reg.
//
// # Inputs
//
//   - reg: Registry to register with. Use prometheus.DefaultRegisterer in
//     production and prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics if called twice with the same registry (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		RequestDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"route"},
		),

		InFlightRequests: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "in_flight_requests",
				Help:      "Number of requests currently being served",
			},
		),

		AnswersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "total",
				Help:      "Chat outcomes by kind",
			},
			[]string{"outcome"},
		),

		UnverifiedNumbersTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "unverified_numbers_total",
				Help:      "Numbers in narratives that matched no fetched or computed value",
			},
		),

		LLMComputedMathTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: answerSubsystem,
				Name:      "llm_computed_math_total",
				Help:      "Answers whose narrative contained an ungrounded computed value",
			},
		),

		ErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "errors_total",
				Help:      "Errors by route and error code",
			},
			[]string{"route", "error_code"},
		),
	}
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	ErrorCodeValidation  ErrorCode = "validation"
	ErrorCodeOutOfScope  ErrorCode = "out_of_scope"
	ErrorCodeInvalidPlan ErrorCode = "invalid_plan"
	ErrorCodeNotFound    ErrorCode = "not_found"
	ErrorCodeRateLimited ErrorCode = "rate_limited"
	ErrorCodeCompute     ErrorCode = "compute"
	ErrorCodeUpstream    ErrorCode = "upstream"
	ErrorCodeLLMError    ErrorCode = "llm_error"
	ErrorCodeTimeout     ErrorCode = "timeout"
	ErrorCodeInternal    ErrorCode = "internal"
)

// =============================================================================
// Helper Methods
// =============================================================================

// Middleware records request count, latency and in-flight requests.
// Routes are labelled by their registered pattern so /api/company/:ticker
// stays one series.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		m.InFlightRequests.Inc()
		defer m.InFlightRequests.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// RecordError records an error response.
func (m *Metrics) RecordError(route string, code ErrorCode) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(route, string(code)).Inc()
}

// RecordAnswer records the outcome and guardrail results of a response.
func (m *Metrics) RecordAnswer(resp *datatypes.AnalysisResponse) {
	if m == nil || resp == nil {
		return
	}
	if resp.NeedsClarification {
		m.AnswersTotal.WithLabelValues("clarification").Inc()
		return
	}
	m.AnswersTotal.WithLabelValues("answered").Inc()
	m.UnverifiedNumbersTotal.Add(float64(len(resp.Guardrails.UnverifiedNumbers)))
	if resp.Guardrails.LLMComputedMath {
		m.LLMComputedMathTotal.Inc()
	}
}

// Handler serves the metrics in g.
func Handler(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
