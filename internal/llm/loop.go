package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// TokenSink receives each turn's own usage right after that turn, so
// the caller can add it to the cumulative token counts in the agent
// registry before the runtime exits (spec.md §4.6, §4.7 invariants).
type TokenSink func(inputTokens, outputTokens int64)

// Result is what the agentic loop produced: the final text answer (or
// best partial text on max_tokens/max_turns) and why it stopped.
type Result struct {
	FinalText string
	StopKind  string // "end_turn", "max_tokens", "max_turns", "other:<reason>"
}

const defaultMaxTokens = 4096

// RunLoop drives at most maxTurns exchanges with provider, following
// spec.md §4.7's turn dispatch on stop_reason. On tool_use it executes
// every tool_use block in order (via the matching Tool.Handler),
// appends the assistant message followed by a user message of
// tool_result blocks, and loops.
func RunLoop(ctx context.Context, provider Provider, model, systemPrompt, userTask string, tools []Tool, maxTurns int, observer ToolObserver, tokens TokenSink) (Result, error) {
	if maxTurns <= 0 {
		maxTurns = 50
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}

	messages := []Message{{Role: RoleUser, Content: []ContentBlock{TextBlock(userTask)}}}
	var lastText string

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := provider.Complete(ctx, Request{
			Model:     model,
			MaxTokens: defaultMaxTokens,
			System:    systemPrompt,
			Messages:  messages,
			Tools:     tools,
		})
		if err != nil {
			return Result{FinalText: lastText}, err
		}
		if tokens != nil {
			tokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)
		}

		for _, block := range resp.Content {
			if block.Type == ContentText {
				lastText = block.Text
			}
		}

		switch resp.StopReason {
		case StopReasonEndTurn:
			return Result{FinalText: lastText, StopKind: "end_turn"}, nil

		case StopReasonMaxTokens:
			return Result{FinalText: lastText, StopKind: "max_tokens"}, nil

		case StopReasonToolUse:
			assistantMsg := Message{Role: RoleAssistant, Content: resp.Content}
			var toolResults []ContentBlock
			for _, block := range resp.Content {
				if block.Type != ContentToolUse || block.ToolUse == nil {
					continue
				}
				result, isErr := executeTool(ctx, byName, block.ToolUse.Name, block.ToolUse.Input)
				if observer != nil {
					observer(block.ToolUse.Name, block.ToolUse.Input, result)
				}
				toolResults = append(toolResults, ToolResultBlock(block.ToolUse.ID, result, isErr))
			}
			messages = append(messages, assistantMsg, Message{Role: RoleUser, Content: toolResults})
			continue

		default:
			return Result{FinalText: lastText, StopKind: "other:" + string(resp.StopReason)}, nil
		}
	}

	return Result{FinalText: lastText, StopKind: "max_turns"}, nil
}

// executeTool stringifies a tool's JSON result, or produces an error
// result carrying the failure message with IsError set, per spec.md
// §4.7 ("setting an error flag on exceptions with the error message
// as the result").
func executeTool(ctx context.Context, tools map[string]Tool, name string, input json.RawMessage) (string, bool) {
	tool, ok := tools[name]
	if !ok || tool.Handler == nil {
		return fmt.Sprintf("unknown tool %q", name), true
	}
	result, err := tool.Handler(ctx, input)
	if err != nil {
		return err.Error(), true
	}
	return result, false
}
