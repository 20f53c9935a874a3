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
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// decodeStructured unmarshals a model answer into target. Models without
// native structured output often wrap JSON in a markdown fence or add a
// sentence around it, so only the outermost object is decoded.
func decodeStructured(raw string, target any) error {
	body := strings.TrimSpace(raw)
	if body == "" {
		return fmt.Errorf("%w: %w", ErrProvider, ErrEmptyResponse)
	}
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: %w: no JSON object in response", ErrProvider, ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), target); err != nil {
		return fmt.Errorf("%w: %w: %v", ErrProvider, ErrMalformedOutput, err)
	}
	return nil
}

// schemaFor builds the JSON schema of the struct target points to.
func schemaFor(target any) (*jsonschema.Definition, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, fmt.Errorf("structured output target must be a non-nil pointer, got %T", target)
	}
	def, err := jsonschema.GenerateSchemaForType(v.Elem().Interface())
	if err != nil {
		return nil, fmt.Errorf("generate schema for %T: %w", target, err)
	}
	return def, nil
}

// schemaInstruction renders the schema as a prompt suffix for backends
// that only support free-text JSON.
func schemaInstruction(target any) (string, error) {
	def, err := schemaFor(target)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("encode schema: %w", err)
	}
	return "Respond with a single JSON object and nothing else. It must conform to this JSON schema:\n" + string(b), nil
}
