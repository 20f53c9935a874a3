// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/secllm/pkg/ux"
	"github.com/AleutianAI/secllm/services/orchestrator"
	"github.com/AleutianAI/secllm/services/orchestrator/observability"
	"github.com/AleutianAI/secllm/services/orchestrator/routes"
	"github.com/AleutianAI/secllm/services/secllm/config"
	"github.com/AleutianAI/secllm/services/secllm/datatypes"
	"github.com/AleutianAI/secllm/services/secllm/plan"
)

// =============================================================================
// serve
// =============================================================================

func newServeCmd(c *cli) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port != 0 {
				c.cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override the configured port")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	logger := c.slog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	shutdown, err := initTelemetry(ctx, c.cfg.Telemetry, reg, logger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(shutdown, logger)

	comps, err := buildComponents(c.cfg, c.newLLM, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	svc, err := orchestrator.New(orchestrator.Config{
		Port:               c.cfg.Server.Port,
		CORSOrigins:        c.cfg.Server.CORSOrigins,
		RateLimitPerMinute: c.cfg.Server.RateLimitPerMinute,
		ServiceName:        c.cfg.Telemetry.ServiceName,
		Logger:             logger,
	}, routes.Dependencies{
		Pipeline:  comps.Pipeline,
		Companies: comps.Gateway,
		Metrics:   observability.NewMetrics(reg),
		Gatherer:  reg,
	})
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

// =============================================================================
// ask
// =============================================================================

func newAskCmd(c *cli) *cobra.Command {
	var (
		timeout     time.Duration
		historyFile string
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer one question and exit",
		Example: `  secllm ask "What was Apple's revenue in FY2024?"
  secllm ask -o json "How did Microsoft's net income grow from 2022 to 2024?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := datatypes.UserQuery{Message: strings.Join(args, " ")}
			if historyFile != "" {
				history, err := readHistory(historyFile)
				if err != nil {
					return &exitError{code: 2, err: err}
				}
				q.ConversationHistory = history
			}
			ctx, cancel := c.commandContext(cmd.Context(), timeout)
			defer cancel()
			return c.ask(ctx, q)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	cmd.Flags().StringVar(&historyFile, "history", "", "JSON file of prior conversation turns")
	return cmd
}

func (c *cli) ask(ctx context.Context, q datatypes.UserQuery) error {
	return c.withPipeline(ctx, "Thinking", func(ctx context.Context, comps *components) (*datatypes.AnalysisResponse, error) {
		return comps.Pipeline.Process(ctx, q)
	})
}

func readHistory(path string) ([]datatypes.ConversationTurn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var turns []datatypes.ConversationTurn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return turns, nil
}

// =============================================================================
// plan
// =============================================================================

func newPlanCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Work with execution plans",
	}

	var (
		timeout   time.Duration
		narrative string
	)
	run := &cobra.Command{
		Use:   "run [plan.json]",
		Short: "Execute a saved plan without the planner",
		Long: `Execute a plan read from a file, or from stdin when the path is "-".

The plan is validated exactly as a planner-produced plan would be. When
--narrative is given, its numbers are checked against the plan's results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPlan(args[0], cmd.InOrStdin())
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			ctx, cancel := c.commandContext(cmd.Context(), timeout)
			defer cancel()
			return c.withPipeline(ctx, "Executing plan", func(ctx context.Context, comps *components) (*datatypes.AnalysisResponse, error) {
				return comps.Pipeline.ExecutePlan(ctx, raw, narrative)
			})
		},
	}
	run.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	run.Flags().StringVar(&narrative, "narrative", "", "text to verify against the results")

	cmd.AddCommand(run)
	return cmd
}

func readPlan(path string, stdin io.Reader) (plan.RawPlan, error) {
	var (
		raw plan.RawPlan
		dec *json.Decoder
	)
	if path == "-" {
		dec = json.NewDecoder(stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return raw, fmt.Errorf("open plan: %w", err)
		}
		defer f.Close()
		dec = json.NewDecoder(f)
	}
	if err := dec.Decode(&raw); err != nil {
		return raw, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return raw, nil
}

// =============================================================================
// company
// =============================================================================

func newCompanyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "company [ticker]",
		Short: "Look up a registrant by ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comps, err := buildComponents(c.cfg, c.newLLM, c.slog())
			if err != nil {
				return err
			}
			defer comps.Close()

			company, err := comps.Gateway.Company(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printer.Company(company)
		},
	}
}

// =============================================================================
// config
// =============================================================================

func newConfigCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write the default configuration",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "secllm.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			c.printer.Success("wrote " + path)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			redacted := *c.cfg
			if redacted.LLM.APIKey != "" {
				redacted.LLM.APIKey = "[REDACTED]"
			}
			if redacted.Archive.InfluxToken != "" {
				redacted.Archive.InfluxToken = "[REDACTED]"
			}
			if c.printer.Mode() == ux.ModeJSON {
				return c.printer.JSON(redacted)
			}
			enc := yaml.NewEncoder(c.stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(redacted)
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}

// =============================================================================
// Helpers
// =============================================================================

// commandContext adds SIGINT handling and an optional deadline.
func (c *cli) commandContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() { cancel(); stop() }
}

// withPipeline builds the components, runs fn under a spinner and prints
// the answer. A clarification request exits with status 3.
func (c *cli) withPipeline(ctx context.Context, label string, fn func(context.Context, *components) (*datatypes.AnalysisResponse, error)) error {
	logger := c.slog()
	shutdown, err := initTelemetry(ctx, c.cfg.Telemetry, nil, logger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(shutdown, logger)

	comps, err := buildComponents(c.cfg, c.newLLM, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	spin := ux.NewSpinner(c.stderr, c.printer.Mode(), label)
	spin.Start()
	resp, err := fn(ctx, comps)
	spin.Stop()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out: %w", err)
		}
		return err
	}

	if err := c.printer.Answer(resp); err != nil {
		return err
	}
	if resp.NeedsClarification {
		return &exitError{code: 3, err: errors.New("question needs clarification")}
	}
	return nil
}
