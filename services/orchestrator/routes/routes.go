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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/secllm/services/orchestrator/handlers"
	"github.com/AleutianAI/secllm/services/orchestrator/middleware"
	"github.com/AleutianAI/secllm/services/orchestrator/observability"
	"github.com/AleutianAI/secllm/services/secllm/edgar"
)

// Dependencies are the collaborators the routes are wired to.
type Dependencies struct {
	Pipeline  handlers.QueryProcessor
	Companies edgar.CompanyLookup

	// Limiter throttles the model-backed routes. Nil disables throttling.
	Limiter *middleware.RateLimiter

	// Metrics may be nil. Gatherer serves /metrics when non-nil.
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.GET("/api/health", handlers.HealthCheck)
	if deps.Gatherer != nil {
		router.GET("/metrics", observability.Handler(deps.Gatherer))
	}

	api := router.Group("/api")
	{
		api.GET("/company/:ticker", handlers.HandleCompany(deps.Companies, deps.Metrics))

		// Each request here can fan out to EDGAR and the model backend.
		throttled := api.Group("")
		if deps.Limiter != nil {
			throttled.Use(deps.Limiter.Middleware())
		}
		throttled.POST("/chat", handlers.HandleChat(deps.Pipeline, deps.Metrics))
		throttled.POST("/plan/execute", handlers.HandleExecutePlan(deps.Pipeline, deps.Metrics))
	}
}
