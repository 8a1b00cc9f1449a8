package checkpoint

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/idgen"
)

type MongoStore struct {
	checkpoints *mongo.Collection
}

func NewMongoStore(checkpoints *mongo.Collection) *MongoStore {
	return &MongoStore{checkpoints: checkpoints}
}

func (s *MongoStore) CreateCheckpoint(ctx context.Context, agentID string, summary domain.CheckpointSummary, pointer domain.ResumePointer, tokensUsed int64) (domain.Checkpoint, error) {
	if summary.Goal == "" {
		return domain.Checkpoint{}, coorderrors.New(coorderrors.KindValidation, "summary.goal is required")
	}
	if pointer.NextAction == "" || pointer.Phase == "" {
		return domain.Checkpoint{}, coorderrors.New(coorderrors.KindValidation, "resumePointer.nextAction and phase are required")
	}
	cp := domain.Checkpoint{
		CheckpointID:  idgen.New(),
		AgentID:       agentID,
		Summary:       summary,
		ResumePointer: pointer,
		TokensUsed:    tokensUsed,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.checkpoints.InsertOne(ctx, cp); err != nil {
		return domain.Checkpoint{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "insert checkpoint", err)
	}
	return cp, nil
}

// GetLatestCheckpoint returns the checkpoint with the strictly
// greatest createdAt for agentID. Ties are broken by a stable
// secondary sort on checkpointId, so repeated calls return the same
// document even when two checkpoints share a timestamp (spec.md §8).
func (s *MongoStore) GetLatestCheckpoint(ctx context.Context, agentID string) (domain.Checkpoint, bool, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "checkpointId", Value: -1}})
	var cp domain.Checkpoint
	err := s.checkpoints.FindOne(ctx, bson.D{{Key: "agentId", Value: agentID}}, opts).Decode(&cp)
	if err == mongo.ErrNoDocuments {
		return domain.Checkpoint{}, false, nil
	}
	if err != nil {
		return domain.Checkpoint{}, false, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find latest checkpoint", err)
	}
	return cp, true, nil
}

func (s *MongoStore) BuildResumeContext(ctx context.Context, agentID string) (string, error) {
	cp, ok, err := s.GetLatestCheckpoint(ctx, agentID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return RenderResumeContext(cp), nil
}
