package sandboxstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
)

type MongoStore struct {
	sandboxes *mongo.Collection
}

func NewMongoStore(sandboxes *mongo.Collection) *MongoStore {
	return &MongoStore{sandboxes: sandboxes}
}

func (s *MongoStore) Attach(ctx context.Context, sandboxID, agentID string, metadata domain.SandboxMetadata, resources domain.SandboxResources) (domain.SandboxRecord, error) {
	now := time.Now().UTC()
	record := domain.SandboxRecord{
		SandboxID: sandboxID,
		AgentID:   agentID,
		Status:    domain.SandboxRecordActive,
		Metadata:  metadata,
		Lifecycle: domain.SandboxLifecycle{CreatedAt: now, LastHeartbeat: now},
		Resources: resources,
	}
	filter := bson.D{{Key: "sandboxId", Value: sandboxID}, {Key: "agentId", Value: agentID}}
	update := bson.D{{Key: "$setOnInsert", Value: record}}
	opts := options.Update().SetUpsert(true)
	if _, err := s.sandboxes.UpdateOne(ctx, filter, update, opts); err != nil {
		return domain.SandboxRecord{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "attach sandbox record", err)
	}
	return s.Get(ctx, sandboxID, agentID)
}

func (s *MongoStore) SetStatus(ctx context.Context, sandboxID, agentID string, status domain.SandboxRecordStatus) (domain.SandboxRecord, error) {
	now := time.Now().UTC()
	set := bson.D{{Key: "status", Value: status}}
	switch status {
	case domain.SandboxRecordPaused:
		set = append(set, bson.E{Key: "lifecycle.pausedAt", Value: now})
	case domain.SandboxRecordActive:
		set = append(set, bson.E{Key: "lifecycle.resumedAt", Value: now})
	case domain.SandboxRecordKilled:
		set = append(set, bson.E{Key: "lifecycle.killedAt", Value: now})
	}
	filter := bson.D{{Key: "sandboxId", Value: sandboxID}, {Key: "agentId", Value: agentID}}
	update := bson.D{{Key: "$set", Value: set}}
	res := s.sandboxes.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
	var record domain.SandboxRecord
	err := res.Decode(&record)
	if err == mongo.ErrNoDocuments {
		return domain.SandboxRecord{}, coorderrors.New(coorderrors.KindSandboxNotFound, fmt.Sprintf("sandbox record %s/%s not found", sandboxID, agentID))
	}
	if err != nil {
		return domain.SandboxRecord{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "set sandbox status", err)
	}
	return record, nil
}

func (s *MongoStore) Heartbeat(ctx context.Context, sandboxID, agentID string) error {
	filter := bson.D{{Key: "sandboxId", Value: sandboxID}, {Key: "agentId", Value: agentID}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "lifecycle.lastHeartbeat", Value: time.Now().UTC()}}}}
	res, err := s.sandboxes.UpdateOne(ctx, filter, update)
	if err != nil {
		return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "heartbeat sandbox record", err)
	}
	if res.MatchedCount == 0 {
		return coorderrors.New(coorderrors.KindSandboxNotFound, fmt.Sprintf("sandbox record %s/%s not found", sandboxID, agentID))
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, sandboxID, agentID string) (domain.SandboxRecord, error) {
	filter := bson.D{{Key: "sandboxId", Value: sandboxID}, {Key: "agentId", Value: agentID}}
	var record domain.SandboxRecord
	err := s.sandboxes.FindOne(ctx, filter).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return domain.SandboxRecord{}, coorderrors.New(coorderrors.KindSandboxNotFound, fmt.Sprintf("sandbox record %s/%s not found", sandboxID, agentID))
	}
	if err != nil {
		return domain.SandboxRecord{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find sandbox record", err)
	}
	return record, nil
}

func (s *MongoStore) ListBySandbox(ctx context.Context, sandboxID string) ([]domain.SandboxRecord, error) {
	cur, err := s.sandboxes.Find(ctx, bson.D{{Key: "sandboxId", Value: sandboxID}})
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "list sandbox records", err)
	}
	var out []domain.SandboxRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode sandbox records", err)
	}
	return out, nil
}

func (s *MongoStore) ListAll(ctx context.Context) ([]domain.SandboxRecord, error) {
	cur, err := s.sandboxes.Find(ctx, bson.D{})
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "list sandbox records", err)
	}
	var out []domain.SandboxRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode sandbox records", err)
	}
	return out, nil
}

func (s *MongoStore) DeleteBySandbox(ctx context.Context, sandboxID string) error {
	_, err := s.sandboxes.DeleteMany(ctx, bson.D{{Key: "sandboxId", Value: sandboxID}})
	if err != nil {
		return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "delete sandbox records", err)
	}
	return nil
}
