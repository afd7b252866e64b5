package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/scout/pkg/agent/tools"
	browsertools "github.com/entrhq/scout/pkg/tools/browser"
	"github.com/entrhq/scout/pkg/types"
)

// executeTools runs the calls of one step concurrently and returns them in
// request order, each finished. Calls are not interrupted by cancellation.
func (m *Manager) executeTools(ctx context.Context, s *session, requests []types.ToolCallRequest, logger *zap.Logger) ([]types.ToolCall, error) {
	if err := m.acquireResources(ctx, s, requests, logger); err != nil {
		return nil, err
	}

	calls := make([]types.ToolCall, len(requests))
	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	for i, req := range requests {
		g.Go(func() error {
			calls[i] = m.registry.Run(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	for _, call := range calls {
		if call.Error != nil {
			logger.Info("tool call failed",
				zap.String("tool", call.ToolName),
				zap.String("kind", string(call.Error.Kind)),
				zap.String("error", call.Error.Message))
		}
	}
	return calls, nil
}

// acquireResources takes the browser lease for the session when a requested
// tool needs exclusive use of it. The lease is kept until the session ends.
func (m *Manager) acquireResources(ctx context.Context, s *session, requests []types.ToolCallRequest, logger *zap.Logger) error {
	if m.browser == nil || s.leased.Load() || !m.needsBrowser(requests) {
		return nil
	}

	logger.Debug("acquiring browser lease")
	if err := m.browser.Acquire(ctx, s.requestID); err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("failed to acquire browser: %w", err)
	}
	s.leased.Store(true)
	return nil
}

func (m *Manager) needsBrowser(requests []types.ToolCallRequest) bool {
	for _, req := range requests {
		tool, ok := m.registry.Get(req.Name)
		if !ok {
			continue
		}
		if ex, ok := tool.(tools.Exclusive); ok && ex.Resource() == browsertools.Resource {
			return true
		}
	}
	return false
}
