package agent

import (
	"context"

	"github.com/entrhq/scout/pkg/agent/prompts"
	"github.com/entrhq/scout/pkg/types"
)

// buildSystemPrompt constructs the system prompt with tool guidance, custom
// instructions and the environment at session start.
func (m *Manager) buildSystemPrompt(ctx context.Context, defs []types.ToolDefinition) string {
	builder := prompts.NewPromptBuilder().WithTools(defs)

	if m.customInstructions != "" {
		builder.WithCustomInstructions(m.customInstructions)
	}

	url, dir := "", ""
	if m.browser != nil {
		url = m.browser.CurrentURL(ctx)
	}
	if m.workspace != nil {
		dir, _ = m.workspace.Root()
	}
	return builder.WithEnvironment(url, dir).Build()
}
