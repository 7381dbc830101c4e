// Package llm provides the model client used for schema-guided extraction,
// relationship detection, narrative analysis and the chat agent. The concrete
// implementation sits on top of the AWS Bedrock Converse API; the Client
// interface exists so callers and tests can substitute fakes.
package llm

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a model conversation. A message carries either plain
// text, assistant tool calls, or user tool results.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolDefinition describes a tool exposed to the model. InputSchema is a JSON
// schema expressed as a plain map.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult carries the outcome of a tool call back to the model. Content is
// serialized as text when it is a string and as a JSON document otherwise.
type ToolResult struct {
	ToolUseID string
	Content   any
}

// Request is a single completion request.
type Request struct {
	// ModelID overrides the client's configured model when non-empty.
	ModelID     string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float32
}

// Usage reports token consumption for a completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the translated model output.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
	ModelID    string
}

// Client is the completion interface the pipeline depends on.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}
