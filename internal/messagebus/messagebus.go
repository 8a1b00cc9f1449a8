// Package messagebus implements the message bus of spec.md §4.1: a
// notification/read-on-demand mailbox backed by the messages
// collection. The two-step checkInboxPreviews/readMessage pattern
// bounds how many tokens an LLM pays to scan its inbox while
// preserving full fidelity on demand.
package messagebus

import (
	"context"

	"github.com/squadlite/squad-lite/internal/domain"
)

// Bus is the interface every caller (tools, REST handlers, watchers)
// depends on. The concrete MongoDB implementation lives in mongo.go;
// tests use the in-memory fake in internal/storetest.
type Bus interface {
	SendMessage(ctx context.Context, fromAgent, toAgent, content string, msgType domain.MessageType, threadID, priority string) (domain.Message, error)
	GetInbox(ctx context.Context, agentID string, limit int) ([]domain.Message, error)
	CheckInboxPreviews(ctx context.Context, agentID string, limit int) ([]domain.MessagePreview, error)
	ReadMessage(ctx context.Context, messageID string) (domain.Message, error)
	GetThread(ctx context.Context, threadID string) ([]domain.Message, error)
	ListRecent(ctx context.Context, limit int) ([]domain.Message, error)
}

const previewLength = 50

// BuildPreview truncates content to previewLength characters, appending
// "..." iff truncation occurred. Exported so storetest's fake and the
// Mongo-backed implementation share one definition of the contract
// tested in spec.md §8 ("previews are exactly min(50, len(content))
// characters plus "..." iff truncation occurred").
func BuildPreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return string(runes)
	}
	return string(runes[:previewLength]) + "..."
}

// clampLimit applies the same default-and-cap behavior the teacher
// uses throughout internal/tasks/manager.go and internal/state/store.go.
func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
