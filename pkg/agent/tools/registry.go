package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/types"
)

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry holds the tools available to the model and executes them. It is
// filled once at startup; Invoke keeps no state between calls.
type Registry struct {
	tools  map[string]*registered
	logger *zap.Logger
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]*registered),
		logger: logger,
	}
}

// Register adds tools. It fails on duplicate names and on schemas that do
// not compile.
func (r *Registry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tool := range tools {
		name := tool.Name()
		if name == "" {
			return errors.New("tool name cannot be empty")
		}
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("tool %q already registered", name)
		}
		schema, err := compileSchema(name, tool.Schema())
		if err != nil {
			return fmt.Errorf("tool %q: %w", name, err)
		}
		r.tools[name] = &registered{tool: tool, schema: schema}
	}
	return nil
}

func compileSchema(name string, schema map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// Tools returns the registered tools sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].tool)
	}
	return out
}

// Definitions returns the declarations sent to the model.
func (r *Registry) Definitions() []types.ToolDefinition {
	tools := r.Tools()
	defs := make([]types.ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		defs = append(defs, types.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return defs
}

// Validate looks up name and checks arguments against its schema.
func (r *Registry) Validate(name string, arguments json.RawMessage) (Tool, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NoSuchToolError{Name: name}
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(normalizeArguments(arguments)))
	if err != nil {
		return nil, &InvalidToolInputError{
			Tool:        name,
			Raw:         arguments,
			Diagnostics: []string{"arguments are not valid JSON: " + err.Error()},
		}
	}
	if err := reg.schema.Validate(inst); err != nil {
		return nil, &InvalidToolInputError{
			Tool:        name,
			Raw:         arguments,
			Diagnostics: diagnostics(err),
		}
	}
	return reg.tool, nil
}

// diagnostics flattens a validation error into one line per failure.
func diagnostics(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		out = append(out, strings.TrimPrefix(line, "- "))
	}
	if len(out) == 0 {
		out = append(out, err.Error())
	}
	return out
}

// Invoke validates arguments and runs the named tool. A panicking handler is
// reported as a PanicError.
func (r *Registry) Invoke(ctx context.Context, name string, arguments json.RawMessage) (output string, err error) {
	ctx, span := observability.StartSpan(ctx, "tool."+name, attribute.String("tool.name", name))
	defer func() {
		observability.EndSpan(span, err)
		result := "ok"
		if err != nil {
			result = string(Classify(err))
		}
		observability.ToolCalls.WithLabelValues(name, result).Inc()
	}()

	tool, err := r.Validate(name, arguments)
	if err != nil {
		return "", err
	}
	arguments = normalizeArguments(arguments)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked",
				zap.String("tool", name),
				zap.Any("panic", p),
				zap.Stack("stack"))
			output, err = "", &PanicError{Tool: name, Value: p}
		}
	}()
	return tool.Execute(ctx, arguments)
}

// Run executes a requested call and returns it with exactly one of output
// and error set. It never fails.
func (r *Registry) Run(ctx context.Context, req types.ToolCallRequest) types.ToolCall {
	call := types.ToolCall{
		ID:       req.ID,
		ToolName: req.Name,
		Input:    req.Arguments,
	}
	output, err := r.Invoke(ctx, req.Name, req.Arguments)
	if err != nil {
		r.logger.Debug("tool call failed",
			zap.String("tool", req.Name),
			zap.String("call_id", req.ID),
			zap.Error(err))
		call.Error = AsToolCallError(err)
		return call
	}
	call.Complete(output)
	return call
}
