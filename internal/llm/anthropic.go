package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/squadlite/squad-lite/internal/coorderrors"
)

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"
const anthropicVersion = "2023-06-01"

// Provider is the interface the agentic loop depends on. Tests
// substitute a fake so the loop is exercised without a live
// Anthropic API key.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// AnthropicClient implements Provider directly against the Anthropic
// Messages API, following the wire shapes of
// bureau-foundation-bureau/lib/llm/anthropic.go (anthropicRequest,
// anthropicContentBlock, anthropicResponse, anthropicUsage) but
// trimmed to non-streaming Complete — the agent runtime issues one
// request per turn and waits for the full response.
type AnthropicClient struct {
	apiKey string
	http   *http.Client
}

func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		apiKey: apiKey,
		http:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	wireReq := anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
	}
	for _, m := range req.Messages {
		wireReq.Messages = append(wireReq.Messages, toAnthropicMessage(m))
	}
	for _, t := range req.Tools {
		wireReq.Tools = append(wireReq.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindLLMFailure, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindLLMFailure, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindLLMFailure, "anthropic request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindLLMFailure, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, coorderrors.New(coorderrors.KindLLMFailure, fmt.Sprintf("anthropic status %d: %s", resp.StatusCode, string(data)))
	}

	var wireResp anthropicResponse
	if err := json.Unmarshal(data, &wireResp); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindLLMFailure, "decode response", err)
	}
	return wireResp.toResponse(), nil
}

// --- Anthropic wire types ---

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func toAnthropicMessage(m Message) anthropicMessage {
	wire := anthropicMessage{Role: string(m.Role)}
	for _, block := range m.Content {
		wire.Content = append(wire.Content, toAnthropicContentBlock(block))
	}
	return wire
}

func toAnthropicContentBlock(block ContentBlock) anthropicContentBlock {
	switch block.Type {
	case ContentText:
		return anthropicContentBlock{Type: "text", Text: block.Text}
	case ContentToolUse:
		if block.ToolUse != nil {
			return anthropicContentBlock{Type: "tool_use", ID: block.ToolUse.ID, Name: block.ToolUse.Name, Input: block.ToolUse.Input}
		}
	case ContentToolResult:
		if block.ToolResult != nil {
			return anthropicContentBlock{Type: "tool_result", ToolUseID: block.ToolResult.ToolUseID, Content: block.ToolResult.Content, IsError: block.ToolResult.IsError}
		}
	}
	return anthropicContentBlock{Type: string(block.Type)}
}

func fromAnthropicContentBlock(wire anthropicContentBlock) ContentBlock {
	switch wire.Type {
	case "text":
		return TextBlock(wire.Text)
	case "tool_use":
		return ToolUseBlock(wire.ID, wire.Name, wire.Input)
	default:
		return TextBlock(wire.Text)
	}
}

func (wireResp *anthropicResponse) toResponse() *Response {
	resp := &Response{
		StopReason: mapAnthropicStopReason(wireResp.StopReason),
		Usage:      Usage{InputTokens: wireResp.Usage.InputTokens, OutputTokens: wireResp.Usage.OutputTokens},
	}
	for _, b := range wireResp.Content {
		resp.Content = append(resp.Content, fromAnthropicContentBlock(b))
	}
	return resp
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopReasonEndTurn
	case "tool_use":
		return StopReasonToolUse
	case "max_tokens":
		return StopReasonMaxTokens
	case "stop_sequence":
		return StopReasonStopSequence
	default:
		return StopReason(reason)
	}
}
