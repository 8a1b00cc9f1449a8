// Package storetest holds in-memory fakes of every storage interface
// for use in package tests, following the teacher's pattern of
// hand-rolled fakes (see internal/state's in-memory test doubles)
// rather than a mock-generation tool.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/idgen"
	"github.com/squadlite/squad-lite/internal/messagebus"
)

type MessageBus struct {
	mu       sync.Mutex
	messages map[string]domain.Message
}

func NewMessageBus() *MessageBus {
	return &MessageBus{messages: make(map[string]domain.Message)}
}

func (b *MessageBus) SendMessage(ctx context.Context, fromAgent, toAgent, content string, msgType domain.MessageType, threadID, priority string) (domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if threadID == "" {
		threadID = idgen.New()
	}
	p := domain.Priority(priority)
	switch p {
	case domain.PriorityHigh, domain.PriorityNormal, domain.PriorityLow:
	default:
		p = domain.PriorityNormal
	}
	msg := domain.Message{
		MessageID: idgen.New(),
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Content:   content,
		Type:      msgType,
		ThreadID:  threadID,
		Priority:  p,
		CreatedAt: time.Now().UTC(),
	}
	b.messages[msg.MessageID] = msg
	return msg, nil
}

func (b *MessageBus) GetInbox(ctx context.Context, agentID string, limit int) ([]domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var byPriority [3][]domain.Message
	for _, m := range b.messages {
		if m.ToAgent != agentID || m.ReadAt != nil {
			continue
		}
		byPriority[m.Priority.Rank()] = append(byPriority[m.Priority.Rank()], m)
	}
	for i := range byPriority {
		sort.Slice(byPriority[i], func(a, b int) bool {
			return byPriority[i][a].CreatedAt.Before(byPriority[i][b].CreatedAt)
		})
	}
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Message
	for _, bucket := range byPriority {
		for _, m := range bucket {
			if len(out) >= limit {
				return out, nil
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func (b *MessageBus) CheckInboxPreviews(ctx context.Context, agentID string, limit int) ([]domain.MessagePreview, error) {
	if limit <= 0 {
		limit = 10
	}
	messages, err := b.GetInbox(ctx, agentID, limit)
	if err != nil {
		return nil, err
	}
	previews := make([]domain.MessagePreview, 0, len(messages))
	for _, m := range messages {
		previews = append(previews, domain.MessagePreview{
			MessageID: m.MessageID,
			FromAgent: m.FromAgent,
			Type:      m.Type,
			Priority:  m.Priority,
			Preview:   messagebus.BuildPreview(m.Content),
			CreatedAt: m.CreatedAt,
		})
	}
	return previews, nil
}

func (b *MessageBus) ReadMessage(ctx context.Context, messageID string) (domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msg, ok := b.messages[messageID]
	if !ok {
		return domain.Message{}, coorderrors.New(coorderrors.KindNotFound, "message not found")
	}
	if msg.ReadAt == nil {
		now := time.Now().UTC()
		msg.ReadAt = &now
		b.messages[messageID] = msg
	}
	return msg, nil
}

func (b *MessageBus) GetThread(ctx context.Context, threadID string) ([]domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Message
	for _, m := range b.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (b *MessageBus) ListRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.Message
	for _, m := range b.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
