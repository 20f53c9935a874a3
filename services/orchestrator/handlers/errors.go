// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/secllm/services/llm"
	"github.com/AleutianAI/secllm/services/orchestrator/middleware"
	"github.com/AleutianAI/secllm/services/orchestrator/observability"
	"github.com/AleutianAI/secllm/services/secllm/compute"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
	"github.com/AleutianAI/secllm/services/secllm/executor"
	"github.com/AleutianAI/secllm/services/secllm/pipeline"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	RequestID string `json:"request_id,omitempty"`
}

// Classify maps an error to its HTTP status and metrics code.
//
// # Description
//
//   - 400: empty query, malformed ticker or filing request
//   - 404: company or filing not found
//   - 422: out-of-scope question, invalid plan, or a run whose every step
//     failed on bad input or arithmetic
//   - 429: EDGAR kept rate limiting after retries
//   - 502: EDGAR or the model backend failed
//   - 504: the request deadline passed
//
// A *pipeline.NoDataError is classified by the first failed step's cause.
func Classify(err error) (int, observability.ErrorCode) {
	var (
		scope  *pipeline.ScopeError
		verr   *plan.ValidationError
		nodata *pipeline.NoDataError
	)
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuery), errors.Is(err, edgar.ErrInvalidRequest):
		return http.StatusBadRequest, observability.ErrorCodeValidation
	case errors.As(err, &scope):
		return http.StatusUnprocessableEntity, observability.ErrorCodeOutOfScope
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, observability.ErrorCodeInvalidPlan
	case errors.As(err, &nodata) && nodata.Cause != nil:
		return classifyStep(nodata.Cause)
	case errors.As(err, &nodata):
		return http.StatusUnprocessableEntity, observability.ErrorCodeCompute
	case errors.Is(err, edgar.ErrCompanyNotFound), errors.Is(err, edgar.ErrFilingNotFound):
		return http.StatusNotFound, observability.ErrorCodeNotFound
	case errors.Is(err, edgar.ErrRateLimited):
		return http.StatusTooManyRequests, observability.ErrorCodeRateLimited
	case errors.Is(err, compute.ErrInvalidInput), errors.Is(err, compute.ErrDivisionByZero):
		return http.StatusUnprocessableEntity, observability.ErrorCodeCompute
	case errors.Is(err, llm.ErrProvider):
		return http.StatusBadGateway, observability.ErrorCodeLLMError
	case errors.Is(err, edgar.ErrUpstream):
		return http.StatusBadGateway, observability.ErrorCodeUpstream
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, observability.ErrorCodeTimeout
	}
	return http.StatusInternalServerError, observability.ErrorCodeInternal
}

func classifyStep(e *executor.StepError) (int, observability.ErrorCode) {
	switch e.Kind {
	case executor.KindNotFound:
		return http.StatusNotFound, observability.ErrorCodeNotFound
	case executor.KindRateLimited:
		return http.StatusTooManyRequests, observability.ErrorCodeRateLimited
	case executor.KindUpstream:
		if errors.Is(e, context.DeadlineExceeded) || errors.Is(e, executor.ErrStepTimeout) {
			return http.StatusGatewayTimeout, observability.ErrorCodeTimeout
		}
		return http.StatusBadGateway, observability.ErrorCodeUpstream
	}
	return http.StatusUnprocessableEntity, observability.ErrorCodeCompute
}

// abortWithError writes the classified error and records it. Internal
// errors are not echoed to clients.
func abortWithError(c *gin.Context, m *observability.Metrics, err error) {
	status, code := Classify(err)
	_ = c.Error(err)
	m.RecordError(c.FullPath(), code)

	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal server error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Detail: detail, RequestID: middleware.GetRequestID(c)})
}

func abortBadRequest(c *gin.Context, m *observability.Metrics, detail string) {
	m.RecordError(c.FullPath(), observability.ErrorCodeValidation)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Detail: detail, RequestID: middleware.GetRequestID(c)})
}
