package agent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/agent/prompts"
	"github.com/entrhq/scout/pkg/llm"
	"github.com/entrhq/scout/pkg/llm/tokenizer"
	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/types"
)

// promptContext holds what stays fixed across the iterations of a session.
type promptContext struct {
	systemPrompt string
	tools        []types.ToolDefinition
	toolTokens   int
}

func (m *Manager) newPromptContext(ctx context.Context) *promptContext {
	defs := m.registry.Definitions()
	return &promptContext{
		systemPrompt: m.buildSystemPrompt(ctx, defs),
		tools:        defs,
		toolTokens:   tokenizer.CountDefinitions(defs),
	}
}

// executeIteration performs one step: a model call and, when the model asks
// for them, one round of tool calls. done reports a final answer.
func (m *Manager) executeIteration(ctx context.Context, s *session, index int, pctx *promptContext, logger *zap.Logger) (done bool, err error) {
	if err := s.transition(types.StatusStreaming); err != nil {
		return false, err
	}
	observability.StepsTotal.Inc()

	messages := m.preparePrompt(s, index, pctx, logger)

	resp, err := m.callLLM(ctx, s, messages, pctx.tools)
	if err != nil {
		return false, err
	}
	m.recordResponse(s, resp)

	if len(resp.ToolCalls) == 0 {
		s.appendStep(types.Step{Index: index, TextDelta: resp.Content})
		return true, s.transition(types.StatusDone)
	}

	if err := s.transition(types.StatusExecutingTools); err != nil {
		return false, err
	}
	calls, err := m.executeTools(ctx, s, resp.ToolCalls, logger)
	if err != nil {
		return false, err
	}

	s.appendStep(types.Step{Index: index, ToolCalls: calls, TextDelta: resp.Content})
	results := make([]*types.Message, len(calls))
	for i, call := range calls {
		results[i] = prompts.ToolResultMessage(resp.ToolCalls[i], call)
	}
	s.addMessages(results...)
	return false, nil
}

// preparePrompt builds the messages for the next model call and records
// their estimated size.
func (m *Manager) preparePrompt(s *session, index int, pctx *promptContext, logger *zap.Logger) []*types.Message {
	messages := prompts.BuildMessages(pctx.systemPrompt, s.messages())

	tokens := tokenizer.CountMessages(messages) + pctx.toolTokens
	observability.PromptTokens.Observe(float64(tokens))
	logger.Debug("calling model",
		zap.Int("step", index),
		zap.Int("messages", len(messages)),
		zap.Int("prompt_tokens", tokens))
	return messages
}

// callLLM streams one model turn, forwarding text deltas as chunk events.
func (m *Manager) callLLM(ctx context.Context, s *session, messages []*types.Message, defs []types.ToolDefinition) (resp *llm.Response, err error) {
	ctx, span := observability.StartSpan(ctx, "model.call",
		attribute.String("provider", m.provider.Name()),
		attribute.String("model", m.provider.GetModel()))
	defer func() { observability.EndSpan(span, err) }()

	stream, err := m.provider.StreamCompletion(ctx, &llm.Request{Messages: messages, Tools: defs})
	if err != nil {
		return nil, err
	}

	return llm.Collect(stream, func(delta string) error {
		if s.isCancelled() {
			return ErrCancelled
		}
		s.appendText(delta)
		m.emit(s, func() { m.emitter.EmitChunk(s.requestID, delta) })
		return nil
	})
}

// recordResponse adds the model turn to the session history.
func (m *Manager) recordResponse(s *session, resp *llm.Response) {
	s.addMessages(types.NewAssistantMessage(resp.Content, resp.ToolCalls))
	if resp.Usage != nil {
		m.logger.Debug("model usage",
			zap.String("request_id", s.requestID),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens))
	}
}
