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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/secllm/pkg/logging"
	"github.com/AleutianAI/secllm/pkg/ux"
	"github.com/AleutianAI/secllm/services/secllm/config"
)

// skipConfigAnnotation marks commands that run without loading config.
const skipConfigAnnotation = "secllm/skip-config"

// configPathEnv names the config file when --config is not given.
const configPathEnv = config.EnvPrefix + "CONFIG"

// cli holds state shared by all commands for one invocation.
type cli struct {
	configPath string
	output     string
	logLevel   string

	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	cfg     *config.Config
	logger  *logging.Logger
	printer *ux.Printer

	// newLLM builds model clients; tests swap in fakes.
	newLLM llmFactory
}

func newCLI() *cli {
	return &cli{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
		newLLM: newLLMClient,
	}
}

// newRootCmd builds the command tree.
func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "secllm",
		Short: "Ask questions about SEC income statements",
		Long: `secllm answers questions about public companies' income statements.

Questions are clarified, planned and executed against SEC EDGAR data.
Every figure in an answer is checked against the filings it came from.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) { c.teardown() },
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default $"+configPathEnv+")")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "auto", "output format: auto, styled, plain or json")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(c),
		newAskCmd(c),
		newPlanCmd(c),
		newCompanyCmd(c),
		newConfigCmd(c),
	)
	return root
}

// setup loads config, then builds the logger and printer.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	mode, err := ux.ParseMode(c.output, outFile(c.stdout))
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	c.printer = ux.NewPrinter(c.stdout, mode)

	if cmd.Annotations[skipConfigAnnotation] != "" {
		return nil
	}

	path := c.configPath
	if path == "" {
		path = c.getenv(configPathEnv)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	c.cfg = cfg

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	c.logger = logging.New(logging.Config{
		Level:    level,
		LogDir:   cfg.Logging.Dir,
		Service:  cfg.Telemetry.ServiceName,
		JSON:     cfg.Logging.JSON,
		Compress: true,
		Stderr:   c.stderr,
	})
	slog.SetDefault(c.logger.Slog())
	return nil
}

func (c *cli) teardown() {
	if c.logger != nil {
		_ = c.logger.Close()
	}
}

func (c *cli) slog() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger.Slog()
}

// outFile returns w as a file when it is one, for terminal detection.
func outFile(w io.Writer) *os.File {
	f, _ := w.(*os.File)
	return f
}

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode prints err and maps it to a status: 2 for usage and config
// problems, 3 when the question needs clarification, 1 otherwise.
func exitCode(err error) int {
	fmt.Fprintln(os.Stderr, "Error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
