// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator serves the HTTP API.
//
// The orchestrator owns the Gin engine and its middleware chain; the
// pipeline, gateway and metrics are built by the caller and injected.
//
// # Usage
//
//	svc, err := orchestrator.New(orchestrator.Config{Port: 8000}, routes.Dependencies{
//	    Pipeline:  p,
//	    Companies: gateway,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = svc.Run(ctx) // returns after ctx is cancelled and requests drain
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/secllm/services/orchestrator/middleware"
	"github.com/AleutianAI/secllm/services/orchestrator/routes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the API server.
//
// # Thread Safety
//
// Run blocks and should only be called once per instance.
type Service interface {
	// Run serves until ctx is cancelled, then shuts down gracefully.
	//
	// # Outputs
	//
	//   - error: Non-nil if the listener fails or shutdown times out.
	Run(ctx context.Context) error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds server options. Zero values use defaults.
type Config struct {
	// Port is the HTTP server port. Default: 8000
	Port int

	// CORSOrigins is the browser origin allow-list.
	// Default: ["http://localhost:3000"]
	CORSOrigins []string

	// RateLimitPerMinute caps model-backed requests per client IP.
	// Default: 20
	RateLimitPerMinute int

	// ServiceName names spans from the otelgin middleware.
	// Default: "secllm"
	ServiceName string

	// ShutdownTimeout bounds the graceful drain. Default: 15s
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// =============================================================================
// Implementation
// =============================================================================

type service struct {
	config Config
	router *gin.Engine
	logger *slog.Logger
}

// New builds the router with its middleware chain and routes.
//
// # Description
//
// Middleware runs in this order: panic recovery, OpenTelemetry spans,
// request id, request log, metrics, CORS. The rate limiter from Config
// is installed on the model-backed routes unless deps already carries one.
//
// # Outputs
//
//   - error: Non-nil if deps lacks the pipeline or company lookup.
func New(cfg Config, deps routes.Dependencies) (Service, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("orchestrator requires a pipeline")
	}
	if deps.Companies == nil {
		return nil, errors.New("orchestrator requires a company lookup")
	}

	s := &service{config: applyConfigDefaults(cfg)}
	s.logger = s.config.Logger

	if deps.Limiter == nil {
		deps.Limiter = middleware.NewRateLimiter(s.config.RateLimitPerMinute)
	}

	s.router = gin.New()
	s.router.Use(
		gin.Recovery(),
		otelgin.Middleware(s.config.ServiceName),
		middleware.RequestID(),
		middleware.RequestLogger(s.logger),
		deps.Metrics.Middleware(),
		middleware.CORS(s.config.CORSOrigins),
	)
	routes.SetupRoutes(s.router, deps)

	return s, nil
}

// Run serves until ctx is cancelled.
func (s *service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return <-errCh
}

// Router returns the configured engine.
func (s *service) Router() *gin.Engine {
	return s.router
}

// applyConfigDefaults fills in zero-valued fields.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 20
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "secllm"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

var _ Service = (*service)(nil)
