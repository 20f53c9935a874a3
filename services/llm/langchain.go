// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LangChainClient adapts a langchaingo model to LLMClient.
//
// Structured output is requested through JSON mode plus the target's
// schema in the system prompt; backends that ignore JSON mode still get
// the instruction.
type LangChainClient struct {
	model   llms.Model
	name    string
	backend string
	logger  *slog.Logger
}

// NewLangChainClient wraps an existing langchaingo model.
func NewLangChainClient(model llms.Model, backend, name string, logger *slog.Logger) (*LangChainClient, error) {
	if model == nil {
		return nil, errors.New("langchain model must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LangChainClient{model: model, name: name, backend: backend, logger: logger}, nil
}

// NewOllamaClient connects to an Ollama server.
func NewOllamaClient(serverURL, model string, logger *slog.Logger) (*LangChainClient, error) {
	if model == "" {
		return nil, errors.New("ollama model is required")
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, ollama.WithServerURL(serverURL))
	}
	m, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create ollama model: %w", err)
	}
	return NewLangChainClient(m, "ollama", model, logger)
}

// NewAnthropicClient connects to the Anthropic messages API.
func NewAnthropicClient(apiKey, baseURL, model string, logger *slog.Logger) (*LangChainClient, error) {
	if model == "" {
		return nil, errors.New("anthropic model is required")
	}
	if apiKey == "" {
		return nil, errors.New("anthropic api key is required")
	}
	opts := []anthropic.Option{anthropic.WithModel(model), anthropic.WithToken(apiKey)}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	m, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create anthropic model: %w", err)
	}
	return NewLangChainClient(m, "anthropic", model, logger)
}

// Model implements LLMClient.
func (c *LangChainClient) Model() string { return c.name }

// Generate implements LLMClient.
func (c *LangChainClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "llm."+c.backend+".Generate",
		trace.WithAttributes(attribute.String("llm.model", c.name)))
	defer span.End()

	out, err := c.generate(ctx, messages, callOptions(params))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", err
	}
	return out, nil
}

// GenerateStructured implements LLMClient.
func (c *LangChainClient) GenerateStructured(ctx context.Context, messages []Message, schema Schema, params GenerationParams) error {
	ctx, span := tracer.Start(ctx, "llm."+c.backend+".GenerateStructured",
		trace.WithAttributes(
			attribute.String("llm.model", c.name),
			attribute.String("llm.schema", schema.Name),
		))
	defer span.End()

	instruction, err := schemaInstruction(schema.Target)
	if err != nil {
		return err
	}
	msgs := append([]Message{System(instruction)}, messages...)
	opts := append(callOptions(params), llms.WithJSONMode())

	out, err := c.generate(ctx, msgs, opts)
	if err == nil {
		err = decodeStructured(out, schema.Target)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "structured generation failed")
		return err
	}
	return nil
}

func (c *LangChainClient) generate(ctx context.Context, messages []Message, opts []llms.CallOption) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.MessageContent{
			Role:  chatRole(m.Role),
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}

	c.logger.Debug("Generating text via langchain", "backend", c.backend, "model", c.name)
	resp, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.Error("LLM call failed", "backend", c.backend, "error", err)
		return "", providerErr(c.backend, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
		return "", fmt.Errorf("%w: %s: %w", ErrProvider, c.backend, ErrEmptyResponse)
	}
	return resp.Choices[0].Content, nil
}

func chatRole(r Role) llms.ChatMessageType {
	switch r {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	}
	return llms.ChatMessageTypeHuman
}

func callOptions(p GenerationParams) []llms.CallOption {
	var opts []llms.CallOption
	if p.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*p.Temperature)))
	}
	if p.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*p.TopP)))
	}
	if p.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*p.MaxTokens))
	}
	if len(p.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(p.Stop))
	}
	return opts
}
