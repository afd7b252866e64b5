package prompts

import (
	"fmt"
	"strings"

	"github.com/entrhq/scout/pkg/types"
)

// PromptBuilder constructs the system prompt for a session
type PromptBuilder struct {
	customInstructions string
	workingDirectory   string
	currentURL         string
	browserTools       bool
	filesystemTools    bool
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// WithTools enables the usage sections matching the declared tools
func (pb *PromptBuilder) WithTools(defs []types.ToolDefinition) *PromptBuilder {
	for _, def := range defs {
		switch def.Name {
		case "navigate", "readPage":
			pb.browserTools = true
		case "readFile", "writeFile", "listDirectory", "createDirectory",
			"getWorkingDirectory", "setWorkingDirectory":
			pb.filesystemTools = true
		}
	}
	return pb
}

// WithCustomInstructions adds operator-provided instructions
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.customInstructions = strings.TrimSpace(instructions)
	return pb
}

// WithEnvironment records the browser URL and working directory at session start.
// Empty values are reported as unset.
func (pb *PromptBuilder) WithEnvironment(currentURL, workingDirectory string) *PromptBuilder {
	pb.currentURL = currentURL
	pb.workingDirectory = workingDirectory
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	if pb.customInstructions != "" {
		builder.WriteString("<custom_instructions>\n")
		builder.WriteString(pb.customInstructions)
		builder.WriteString("\n</custom_instructions>\n\n")
	}

	builder.WriteString(SystemCapabilitiesPrompt)
	builder.WriteString("\n\n")

	builder.WriteString(AgentLoopPrompt)
	builder.WriteString("\n\n")

	if pb.browserTools {
		builder.WriteString(BrowserUsePrompt)
		builder.WriteString("\n\n")
	}
	if pb.filesystemTools {
		builder.WriteString(FilesystemUsePrompt)
		builder.WriteString("\n\n")
	}

	builder.WriteString(ToolUseRulesPrompt)
	builder.WriteString("\n\n")

	builder.WriteString(pb.environment())

	return builder.String()
}

func (pb *PromptBuilder) environment() string {
	url := pb.currentURL
	if url == "" {
		url = "(no page open)"
	}
	dir := pb.workingDirectory
	if dir == "" {
		dir = "(not set)"
	}
	return fmt.Sprintf("<environment>\nCurrent page: %s\nWorking directory: %s\n</environment>", url, dir)
}

// BuildMessages creates the message list for a model call: the system prompt
// followed by the conversation history. System messages in history are skipped.
func BuildMessages(systemPrompt string, history []*types.Message) []*types.Message {
	messages := make([]*types.Message, 0, len(history)+1)
	messages = append(messages, types.NewSystemMessage(systemPrompt))

	for _, msg := range history {
		if msg.Role != types.RoleSystem {
			messages = append(messages, msg)
		}
	}
	return messages
}

// ToolResultMessage turns a finished tool call into the message fed back to the model.
func ToolResultMessage(req types.ToolCallRequest, call types.ToolCall) *types.Message {
	if call.Error != nil {
		return types.NewToolResultMessage(req, fmt.Sprintf("Error (%s): %s", call.Error.Kind, call.Error.Message), true)
	}
	output := ""
	if call.Output != nil {
		output = *call.Output
	}
	if output == "" {
		output = "(no output)"
	}
	return types.NewToolResultMessage(req, output, false)
}
