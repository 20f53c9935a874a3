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
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// openAISecretPath is where a container secret holding the API key is
// mounted when the environment variable is not set.
const openAISecretPath = "/run/secrets/openai_api_key"

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient calls the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// ResolveOpenAIKey returns key when set, otherwise the contents of the
// mounted secret file.
func ResolveOpenAIKey(key string) (string, error) {
	if key != "" {
		return key, nil
	}
	b, err := os.ReadFile(openAISecretPath)
	if err != nil {
		return "", fmt.Errorf("openai api key not configured and secret %s unreadable: %w", openAISecretPath, err)
	}
	slog.Info("Read the OpenAI API key from mounted secret")
	return strings.TrimSpace(string(b)), nil
}

// NewOpenAIClient builds a client. The model is required; an empty API key
// falls back to the mounted secret.
func NewOpenAIClient(cfg OpenAIConfig, logger *slog.Logger) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai model is required")
	}
	key, err := ResolveOpenAIKey(cfg.APIKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	logger.Info("Initializing OpenAI client", "model", cfg.Model)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Model implements LLMClient.
func (o *OpenAIClient) Model() string { return o.model }

// Generate implements LLMClient.
func (o *OpenAIClient) Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.openai.Generate",
		trace.WithAttributes(attribute.String("llm.model", o.model)))
	defer span.End()

	req := o.request(messages, params)
	content, err := o.complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	return content, nil
}

// GenerateStructured implements LLMClient using a JSON-schema response
// format, so the model is constrained to the target's shape.
func (o *OpenAIClient) GenerateStructured(ctx context.Context, messages []Message, schema Schema, params GenerationParams) error {
	ctx, span := tracer.Start(ctx, "llm.openai.GenerateStructured",
		trace.WithAttributes(
			attribute.String("llm.model", o.model),
			attribute.String("llm.schema", schema.Name),
		))
	defer span.End()

	def, err := schemaFor(schema.Target)
	if err != nil {
		return err
	}
	req := o.request(messages, params)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   schema.Name,
			Schema: def,
		},
	}

	content, err := o.complete(ctx, req)
	if err == nil {
		err = decodeStructured(content, schema.Target)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "structured completion failed")
		return err
	}
	return nil
}

func (o *OpenAIClient) request(messages []Message, params GenerationParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{Model: o.model}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

func (o *OpenAIClient) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	o.logger.Debug("Generating text via OpenAI", "model", o.model)
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		o.logger.Error("OpenAI API call failed", "error", err)
		return "", providerErr("openai", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		o.logger.Warn("OpenAI returned no choices or empty content")
		return "", fmt.Errorf("%w: openai: %w", ErrProvider, ErrEmptyResponse)
	}
	o.logger.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
