package messagebus

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/idgen"
)

type MongoBus struct {
	messages *mongo.Collection
}

func NewMongoBus(messages *mongo.Collection) *MongoBus {
	return &MongoBus{messages: messages}
}

func (b *MongoBus) SendMessage(ctx context.Context, fromAgent, toAgent, content string, msgType domain.MessageType, threadID, priority string) (domain.Message, error) {
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
		ReadAt:    nil,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := b.messages.InsertOne(ctx, msg); err != nil {
		return domain.Message{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "insert message", err)
	}
	return msg, nil
}

// GetInbox returns unread messages ordered {priority: high before
// normal before low, then createdAt ascending (FIFO within priority)}.
// Mongo cannot sort on priority rank directly (it is a string), so
// the priority levels are fetched in three ordered passes and merged
// in application code; this keeps the ordering contract of spec.md
// §4.1 exact without a lossy numeric-rank field duplicated in storage.
func (b *MongoBus) GetInbox(ctx context.Context, agentID string, limit int) ([]domain.Message, error) {
	limit = clampLimit(limit, 100, 500)
	var out []domain.Message
	for _, p := range []domain.Priority{domain.PriorityHigh, domain.PriorityNormal, domain.PriorityLow} {
		if len(out) >= limit {
			break
		}
		filter := bson.D{{Key: "toAgent", Value: agentID}, {Key: "readAt", Value: nil}, {Key: "priority", Value: p}}
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit - len(out)))
		cur, err := b.messages.Find(ctx, filter, opts)
		if err != nil {
			return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find inbox", err)
		}
		var batch []domain.Message
		if err := cur.All(ctx, &batch); err != nil {
			return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode inbox", err)
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (b *MongoBus) CheckInboxPreviews(ctx context.Context, agentID string, limit int) ([]domain.MessagePreview, error) {
	limit = clampLimit(limit, 10, 100)
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
			Preview:   BuildPreview(m.Content),
			CreatedAt: m.CreatedAt,
		})
	}
	return previews, nil
}

// ReadMessage returns the full record and marks it read atomically.
// A second call against the same message returns the same readAt
// (idempotent read-mark, spec.md §8): the update only ever sets readAt
// when it is currently null.
func (b *MongoBus) ReadMessage(ctx context.Context, messageID string) (domain.Message, error) {
	now := time.Now().UTC()
	filter := bson.D{{Key: "messageId", Value: messageID}}
	_, err := b.messages.UpdateOne(ctx, bson.D{
		{Key: "messageId", Value: messageID},
		{Key: "readAt", Value: nil},
	}, bson.D{{Key: "$set", Value: bson.D{{Key: "readAt", Value: now}}}})
	if err != nil {
		return domain.Message{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "mark read", err)
	}

	var msg domain.Message
	if err := b.messages.FindOne(ctx, filter).Decode(&msg); err != nil {
		if err == mongo.ErrNoDocuments {
			return domain.Message{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("message %s not found", messageID))
		}
		return domain.Message{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find message", err)
	}
	return msg, nil
}

// ListRecent supports GET /api/messages?limit=N: the most recently
// created messages across every agent, newest first.
func (b *MongoBus) ListRecent(ctx context.Context, limit int) ([]domain.Message, error) {
	limit = clampLimit(limit, 50, 500)
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit))
	cur, err := b.messages.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find recent messages", err)
	}
	var out []domain.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode recent messages", err)
	}
	return out, nil
}

func (b *MongoBus) GetThread(ctx context.Context, threadID string) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := b.messages.Find(ctx, bson.D{{Key: "threadId", Value: threadID}}, opts)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find thread", err)
	}
	var out []domain.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode thread", err)
	}
	return out, nil
}
