package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Tool is a capability the model can invoke during a session. Tools are
// declared to the model by name, description and JSON schema, and invoked
// with JSON arguments that have already been validated against Schema.
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "navigate")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters.
	Schema() map[string]interface{}

	// Execute runs the tool with validated JSON arguments and returns the text
	// fed back to the model.
	Execute(ctx context.Context, arguments json.RawMessage) (string, error)
}

// Exclusive is implemented by tools that operate on a shared resource which a
// session must hold exclusively from its first use until it finishes.
// Resource names the resource, e.g. "browser".
type Exclusive interface {
	Resource() string
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields. Additional properties are
// always rejected.
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty is a schema property of type string.
func StringProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

// normalizeArguments maps an empty or null payload to an empty object.
// Some backends send null for tools without parameters.
func normalizeArguments(arguments json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(arguments)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return arguments
}

// DecodeArguments unmarshals validated arguments into v. An empty or null
// payload is treated as an empty object.
func DecodeArguments(arguments json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(normalizeArguments(arguments), v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
