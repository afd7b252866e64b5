// Package openai provides an OpenAI-compatible LLM provider implementation
// with native function calling.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    panic(err)
//	}
//
//	stream, err := provider.StreamCompletion(ctx, &llm.Request{
//	    Messages: []*types.Message{types.NewUserMessage("Hello!")},
//	})
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	providerName = "openai"
)

// Provider implements the LLM provider interface for OpenAI-compatible APIs.
type Provider struct {
	client      openai.Client
	httpClient  *http.Client
	logger      *zap.Logger
	temperature *float64
	apiKey      string
	baseURL     string
	model       string
	retry       llm.RetryPolicy
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
// This enables using Azure OpenAI, local models, or other compatible services.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = baseURL
		}
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
		p.temperature = &t
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

// NewProvider creates a new OpenAI provider with the given API key.
//
// If apiKey is empty, it will attempt to read from the OPENAI_API_KEY environment variable.
// If baseURL is not provided via WithBaseURL option, it will check OPENAI_BASE_URL environment variable.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	p := &Provider{
		model:      "gpt-4o",
		apiKey:     apiKey,
		httpClient: &http.Client{},
		baseURL:    DefaultBaseURL,
		logger:     zap.NewNop(),
		retry:      llm.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.baseURL == DefaultBaseURL {
		if envBaseURL := os.Getenv("OPENAI_BASE_URL"); envBaseURL != "" {
			p.baseURL = envBaseURL
		}
	}

	// Retries are driven by llm.Retry so they can be logged and bounded in one place.
	p.client = openai.NewClient(
		option.WithAPIKey(p.apiKey),
		option.WithBaseURL(p.baseURL),
		option.WithHTTPClient(p.httpClient),
		option.WithMaxRetries(0),
	)
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

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

// StreamCompletion sends the conversation to the chat completions API and
// streams back response chunks. Opening the stream is retried according to
// the provider's retry policy; once the first chunk has arrived no retry
// happens, so deltas are never duplicated.
func (p *Provider) StreamCompletion(ctx context.Context, req *llm.Request) (<-chan *llm.StreamChunk, error) {
	params := p.buildParams(req)

	var (
		stream *ssestream.Stream[openai.ChatCompletionChunk]
		first  openai.ChatCompletionChunk
	)
	err := llm.Retry(ctx, p.retry, p.logger, func() error {
		s := p.client.Chat.Completions.NewStreaming(ctx, params)
		if !s.Next() {
			err := s.Err()
			_ = s.Close()
			if err == nil {
				err = errors.New("stream ended before any data")
			}
			return p.wrapError(err)
		}
		stream = s
		first = s.Current()
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
	go p.processStream(ctx, stream, first, chunks)
	return chunks, nil
}

func (p *Provider) processStream(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk], first openai.ChatCompletionChunk, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	chunk := first
	for {
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if !send(ctx, chunks, &llm.StreamChunk{Content: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
		if !stream.Next() {
			break
		}
		chunk = stream.Current()
	}

	if err := stream.Err(); err != nil {
		send(ctx, chunks, &llm.StreamChunk{Error: p.wrapError(err)})
		return
	}

	final := &llm.StreamChunk{Finished: true}
	if len(acc.Choices) > 0 {
		final.ToolCalls = convertToolCalls(acc.Choices[0].Message.ToolCalls)
	}
	if acc.Usage.PromptTokens > 0 {
		final.Usage = &llm.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
		}
	}
	send(ctx, chunks, final)
}

// send delivers chunk unless ctx is done, in which case the context error is
// delivered instead on a best-effort basis.
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
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		modelErr.StatusCode = apiErr.StatusCode
	}
	return modelErr
}

func (p *Provider) buildParams(req *llm.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: convertToOpenAIMessages(req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if p.temperature != nil {
		params.Temperature = openai.Float(*p.temperature)
	}
	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.Parameters),
			},
		})
	}
	return params
}

// convertToOpenAIMessages converts our Message format to OpenAI's ChatCompletionMessageParamUnion format.
func convertToOpenAIMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(msg.Content))
		case types.RoleUser:
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		case types.RoleAssistant:
			openaiMessages = append(openaiMessages, assistantMessage(msg))
		case types.RoleTool:
			openaiMessages = append(openaiMessages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			// Default to user message for unknown roles
			openaiMessages = append(openaiMessages, openai.UserMessage(msg.Content))
		}
	}

	return openaiMessages
}

func assistantMessage(msg *types.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Content)
	}

	param := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		param.Content.OfString = openai.String(msg.Content)
	}
	for _, call := range msg.ToolCalls {
		args := string(call.Arguments)
		if args == "" {
			args = "{}"
		}
		param.ToolCalls = append(param.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: call.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      call.Name,
				Arguments: args,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

func convertToolCalls(calls []openai.ChatCompletionMessageToolCall) []types.ToolCallRequest {
	if len(calls) == 0 {
		return nil
	}
	out := make([]types.ToolCallRequest, 0, len(calls))
	for _, call := range calls {
		out = append(out, types.ToolCallRequest{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(call.Function.Arguments),
		})
	}
	return out
}
