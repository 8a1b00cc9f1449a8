// Package llm implements the agentic loop and Anthropic Messages API
// wire client of spec.md §4.7, grounded on the wire format of
// bureau-foundation-bureau/lib/llm/anthropic.go but trimmed to the
// non-streaming Complete call the agent runtime needs: one turn is
// one request/response, never a server-sent-event stream.
package llm

import (
	"context"
	"encoding/json"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

type ContentType string

const (
	ContentText       ContentType = "text"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ContentBlock is a single Anthropic content block, represented with
// one populated pointer per variant rather than an interface, so a
// Message's Content slice marshals back to the wire's discriminated
// union without custom JSON methods.
type ContentBlock struct {
	Type       ContentType `json:"type"`
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"-"`
	ToolResult *ToolResult `json:"-"`
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: ContentToolUse, ToolUse: &ToolUse{ID: id, Name: name, Input: input}}
}

func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{Type: ContentToolResult, ToolResult: &ToolResult{ToolUseID: toolUseID, Content: content, IsError: isError}}
}

type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Tool is the catalogue entry exposed to the LLM: name, description,
// and JSON schema (spec.md §4.7). Handler is invoked by the agentic
// loop when a tool_use block names this tool; it is not part of the
// wire format.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     ToolHandler
}

// ToolHandler executes a tool call and returns a JSON-stringified
// result, or an error whose message becomes the tool_result content
// with IsError set (spec.md §4.7).
type ToolHandler func(ctx context.Context, input json.RawMessage) (string, error)

type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type Request struct {
	Model     string
	MaxTokens int
	System    string
	Messages  []Message
	Tools     []Tool
}

type Response struct {
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// ToolObserver reports every tool execution so the API layer can emit
// WebSocket events (spec.md §4.7).
type ToolObserver func(toolName string, input json.RawMessage, result string)
