package types

import "encoding/json"

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCallRequest is a tool invocation requested by the model.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message is one entry of the conversation sent to the model.
type Message struct {
	// ToolCalls is set on assistant messages that request tools.
	ToolCalls []ToolCallRequest `json:"toolCalls,omitempty"`

	Role    MessageRole `json:"role"`
	Content string      `json:"content"`

	// ToolCallID and ToolName are set on tool result messages.
	ToolCallID string `json:"toolCallId,omitempty"`
	ToolName   string `json:"toolName,omitempty"`

	// IsError marks a tool result message that reports a failure.
	IsError bool `json:"isError,omitempty"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message with optional tool call requests.
func NewAssistantMessage(content string, calls []ToolCallRequest) *Message {
	return &Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolResultMessage creates a tool result message answering the given call.
func NewToolResultMessage(call ToolCallRequest, content string, isError bool) *Message {
	return &Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		IsError:    isError,
	}
}

// ToolDefinition declares a tool to the model.
type ToolDefinition struct {
	Parameters  map[string]interface{} `json:"parameters"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
}
