package agent

import (
	"context"

	"go.uber.org/zap"

	"github.com/entrhq/scout/pkg/observability"
	"github.com/entrhq/scout/pkg/types"
)

// runAgentLoop executes the agent loop until the model answers without tool
// calls or the step cap is reached.
func (m *Manager) runAgentLoop(ctx context.Context, s *session, logger *zap.Logger) (*types.Response, error) {
	pctx := m.newPromptContext(ctx)

	for index := 0; index < m.maxSteps; index++ {
		// No model call is issued once the session is cancelled.
		if s.isCancelled() || ctx.Err() != nil {
			return nil, ErrCancelled
		}

		done, err := m.executeIteration(ctx, s, index, pctx, logger)
		if err != nil {
			return nil, err
		}
		if done {
			return m.answer(ctx, s), nil
		}
	}

	observability.StepCapReached.Inc()
	logger.Warn("step cap reached", zap.Int("max_steps", m.maxSteps))
	if err := s.transition(types.StatusDone); err != nil {
		return nil, err
	}
	return m.answer(ctx, s), nil
}

func (m *Manager) answer(ctx context.Context, s *session) *types.Response {
	url := ""
	if m.browser != nil {
		url = m.browser.CurrentURL(ctx)
	}
	return types.NewAnswer(s.accumulatedText(), url)
}
