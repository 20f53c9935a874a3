// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm wraps the language-model backends used for clarification,
// planning and narration.
//
// Every backend satisfies LLMClient. OpenAIClient talks to the OpenAI chat
// completions API and uses JSON-schema structured outputs; LangChainClient
// adapts any langchaingo model (Ollama, Anthropic) and asks for JSON in
// the prompt instead.
package llm

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("secllm.llm")

var (
	// ErrProvider wraps every failure reported by a model backend.
	ErrProvider = errors.New("llm provider error")

	// ErrEmptyResponse is returned when the backend answers with no content.
	ErrEmptyResponse = errors.New("llm returned an empty response")

	// ErrMalformedOutput is returned when structured output does not decode
	// into the requested type.
	ErrMalformedOutput = errors.New("llm returned malformed structured output")
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// GenerationParams are optional sampling settings. Nil fields keep the
// backend default.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Temperature returns params with only the temperature set.
func Temperature(t float32) GenerationParams {
	return GenerationParams{Temperature: &t}
}

// Schema names a structured output. Target must be a pointer to the
// struct the response decodes into; its type also drives the JSON schema
// sent to backends that support one.
type Schema struct {
	Name   string
	Target any
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate returns free text for the conversation.
	Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// GenerateStructured decodes the model's JSON answer into schema.Target.
	GenerateStructured(ctx context.Context, messages []Message, schema Schema, params GenerationParams) error

	// Model returns the configured model name.
	Model() string
}

func providerErr(backend string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProvider, backend, err)
}
