// Package gemini provides an LLM provider for Google's Gemini API with
// native function calling.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/types"
)

const providerName = "gemini"

// Provider implements llm.Provider for Gemini.
type Provider struct {
	client      *genai.Client
	logger      *zap.Logger
	temperature *float32
	httpClient  *http.Client
	model       string
	baseURL     string
	retry       llm.RetryPolicy
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ProviderOption {
	return func(p *Provider) {
		p.temperature = genai.Ptr(float32(t))
	}
}

// WithRetryPolicy sets how often opening a stream is retried.
func WithRetryPolicy(policy llm.RetryPolicy) ProviderOption {
	return func(p *Provider) {
		p.retry = policy
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a Gemini provider. An empty apiKey falls back to
// GEMINI_API_KEY, then GOOGLE_API_KEY.
func NewProvider(ctx context.Context, apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (provide via parameter or GEMINI_API_KEY environment variable)")
	}

	p := &Provider{
		model:  "gemini-2.5-flash",
		logger: zap.NewNop(),
		retry:  llm.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// StreamCompletion streams one model turn. Opening the stream is retried
// until the first response arrives.
func (p *Provider) StreamCompletion(ctx context.Context, req *llm.Request) (<-chan *llm.StreamChunk, error) {
	contents, system := convertMessages(req.Messages)
	config := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       p.temperature,
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 def.Name,
				Description:          def.Description,
				ParametersJsonSchema: def.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	var (
		next  func() (*genai.GenerateContentResponse, error, bool)
		stop  func()
		first *genai.GenerateContentResponse
	)
	err := llm.Retry(ctx, p.retry, p.logger, func() error {
		n, s := iter.Pull2(p.client.Models.GenerateContentStream(ctx, p.model, contents, config))
		resp, err, ok := n()
		if !ok {
			s()
			return p.wrapError(errors.New("stream ended before any data"))
		}
		if err != nil {
			s()
			return p.wrapError(err)
		}
		next, stop, first = n, s, resp
		return nil
	})
	if err != nil {
		var modelErr *llm.ModelError
		if !errors.As(err, &modelErr) {
			err = p.wrapError(err)
		}
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 10)
	go p.processStream(ctx, next, stop, first, chunks)
	return chunks, nil
}

func (p *Provider) processStream(ctx context.Context, next func() (*genai.GenerateContentResponse, error, bool), stop func(), resp *genai.GenerateContentResponse, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer stop()

	var (
		calls []types.ToolCallRequest
		usage *llm.Usage
	)
	for {
		if text := responseText(resp); text != "" {
			if !send(ctx, chunks, &llm.StreamChunk{Content: text}) {
				return
			}
		}
		for _, fc := range resp.FunctionCalls() {
			calls = append(calls, convertFunctionCall(fc))
		}
		if resp.UsageMetadata != nil && resp.UsageMetadata.PromptTokenCount > 0 {
			usage = &llm.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}

		r, err, ok := next()
		if !ok {
			break
		}
		if err != nil {
			send(ctx, chunks, &llm.StreamChunk{Error: p.wrapError(err)})
			return
		}
		resp = r
	}

	send(ctx, chunks, &llm.StreamChunk{Finished: true, ToolCalls: calls, Usage: usage})
}

// responseText concatenates the text parts of the first candidate, skipping thoughts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" && !part.Thought {
			text += part.Text
		}
	}
	return text
}

func convertFunctionCall(fc *genai.FunctionCall) types.ToolCallRequest {
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args, err := json.Marshal(fc.Args)
	if err != nil || fc.Args == nil {
		args = []byte("{}")
	}
	return types.ToolCallRequest{ID: id, Name: fc.Name, Arguments: args}
}

func send(ctx context.Context, chunks chan<- *llm.StreamChunk, chunk *llm.StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		select {
		case chunks <- &llm.StreamChunk{Error: ctx.Err()}:
		default:
		}
		return false
	}
}

func (p *Provider) wrapError(err error) error {
	modelErr := &llm.ModelError{Provider: providerName, Err: err}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		modelErr.StatusCode = apiErr.Code
	}
	return modelErr
}

// convertMessages maps the conversation onto Gemini contents. System messages
// become the system instruction; consecutive tool results are merged into one
// user turn as Gemini expects.
func convertMessages(messages []*types.Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   *genai.Content
	)
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.NewPartFromText(msg.Content))
		case types.RoleAssistant:
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := map[string]any{}
				if len(call.Arguments) > 0 {
					_ = json.Unmarshal(call.Arguments, &args)
				}
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: args,
				}})
			}
			if len(content.Parts) == 0 {
				content.Parts = append(content.Parts, genai.NewPartFromText(" "))
			}
			contents = append(contents, content)
		case types.RoleTool:
			key := "output"
			if msg.IsError {
				key = "error"
			}
			part := genai.NewPartFromFunctionResponse(msg.ToolName, map[string]any{key: msg.Content})
			part.FunctionResponse.ID = msg.ToolCallID

			last := len(contents) - 1
			if last >= 0 && contents[last].Role == genai.RoleUser && isFunctionResponses(contents[last]) {
				contents[last].Parts = append(contents[last].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{part}})
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents, system
}

func isFunctionResponses(c *genai.Content) bool {
	for _, part := range c.Parts {
		if part.FunctionResponse == nil {
			return false
		}
	}
	return len(c.Parts) > 0
}
