package agentregistry

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

type MongoRegistry struct {
	agents *mongo.Collection
}

func NewMongoRegistry(agents *mongo.Collection) *MongoRegistry {
	return &MongoRegistry{agents: agents}
}

func (r *MongoRegistry) RegisterAgent(ctx context.Context, agentType domain.AgentType, specialization *domain.Specialization, parentID, taskID *string) (domain.Agent, error) {
	now := time.Now().UTC()
	agent := domain.Agent{
		AgentID:        idgen.New(),
		Type:           agentType,
		Specialization: specialization,
		Status:         domain.AgentStatusIdle,
		SandboxStatus:  domain.SandboxStatusNone,
		ParentID:       parentID,
		TaskID:         taskID,
		CreatedAt:      now,
		LastHeartbeat:  now,
	}
	if _, err := r.agents.InsertOne(ctx, agent); err != nil {
		return domain.Agent{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "insert agent", err)
	}
	return agent, nil
}

func (r *MongoRegistry) GetAgent(ctx context.Context, agentID string) (domain.Agent, error) {
	var agent domain.Agent
	err := r.agents.FindOne(ctx, bson.D{{Key: "agentId", Value: agentID}}).Decode(&agent)
	if err == mongo.ErrNoDocuments {
		return domain.Agent{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	if err != nil {
		return domain.Agent{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find agent", err)
	}
	return agent, nil
}

// UpdateStatus also advances lastHeartbeat and, when a taskId is given,
// sets it on the record (spec.md §4.4). A director/specialist driven to
// working always passes its taskId here, keeping the §3 invariant that
// status=working implies a non-null taskId intact from the moment of
// transition, not just eventually.
func (r *MongoRegistry) UpdateStatus(ctx context.Context, agentID string, status domain.AgentStatus, taskID *string) (domain.Agent, error) {
	fields := bson.D{
		{Key: "status", Value: status},
		{Key: "lastHeartbeat", Value: time.Now().UTC()},
	}
	if taskID != nil {
		fields = append(fields, bson.E{Key: "taskId", Value: *taskID})
	}
	return r.update(ctx, agentID, fields)
}

func (r *MongoRegistry) BindSandbox(ctx context.Context, agentID, sandboxID string, sandboxStatus domain.SandboxStatus) (domain.Agent, error) {
	return r.update(ctx, agentID, bson.D{
		{Key: "sandboxId", Value: sandboxID},
		{Key: "sandboxStatus", Value: sandboxStatus},
	})
}

func (r *MongoRegistry) SetSandboxStatus(ctx context.Context, agentID string, sandboxStatus domain.SandboxStatus) (domain.Agent, error) {
	return r.update(ctx, agentID, bson.D{{Key: "sandboxStatus", Value: sandboxStatus}})
}

func (r *MongoRegistry) update(ctx context.Context, agentID string, fields bson.D) (domain.Agent, error) {
	filter := bson.D{{Key: "agentId", Value: agentID}}
	update := bson.D{{Key: "$set", Value: fields}}
	res := r.agents.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
	var agent domain.Agent
	err := res.Decode(&agent)
	if err == mongo.ErrNoDocuments {
		return domain.Agent{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	if err != nil {
		return domain.Agent{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "update agent", err)
	}
	return agent, nil
}

// GetOrCreateSession returns the agent's existing sessionId, or mints
// one with idgen.NewSessionID and persists it the first time an agent
// process asks for one (spec.md §4.4's lazy session-id assignment).
func (r *MongoRegistry) GetOrCreateSession(ctx context.Context, agentID string) (string, error) {
	agent, err := r.GetAgent(ctx, agentID)
	if err != nil {
		return "", err
	}
	if agent.SessionID != nil && *agent.SessionID != "" {
		return *agent.SessionID, nil
	}
	sessionID := idgen.NewSessionID()
	filter := bson.D{{Key: "agentId", Value: agentID}, {Key: "sessionId", Value: nil}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "sessionId", Value: sessionID}}}}
	res, err := r.agents.UpdateOne(ctx, filter, update)
	if err != nil {
		return "", coorderrors.Wrap(coorderrors.KindStorageUnavailable, "set session id", err)
	}
	if res.MatchedCount == 0 {
		// Lost the race to another caller; re-read whatever it set.
		agent, err = r.GetAgent(ctx, agentID)
		if err != nil {
			return "", err
		}
		if agent.SessionID != nil {
			return *agent.SessionID, nil
		}
		return "", coorderrors.New(coorderrors.KindStorageUnavailable, "session id missing after concurrent assignment")
	}
	return sessionID, nil
}

// AddTokens atomically increments the agent's cumulative token counts.
// Token usage is monotonic (spec.md §4.4): this only ever adds to the
// running totals, never overwrites them.
func (r *MongoRegistry) AddTokens(ctx context.Context, agentID string, inputTokens, outputTokens int64) (domain.Agent, error) {
	now := time.Now().UTC()
	filter := bson.D{{Key: "agentId", Value: agentID}}
	update := bson.D{
		{Key: "$inc", Value: bson.D{
			{Key: "tokenUsage.totalInputTokens", Value: inputTokens},
			{Key: "tokenUsage.totalOutputTokens", Value: outputTokens},
		}},
		{Key: "$set", Value: bson.D{{Key: "tokenUsage.lastUpdated", Value: now}}},
	}
	res := r.agents.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
	var agent domain.Agent
	err := res.Decode(&agent)
	if err == mongo.ErrNoDocuments {
		return domain.Agent{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	if err != nil {
		return domain.Agent{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "increment token usage", err)
	}
	return agent, nil
}

func (r *MongoRegistry) Heartbeat(ctx context.Context, agentID string) error {
	filter := bson.D{{Key: "agentId", Value: agentID}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "lastHeartbeat", Value: time.Now().UTC()}}}}
	res, err := r.agents.UpdateOne(ctx, filter, update)
	if err != nil {
		return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "heartbeat agent", err)
	}
	if res.MatchedCount == 0 {
		return coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	return nil
}

func (r *MongoRegistry) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := r.agents.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "list agents", err)
	}
	var out []domain.Agent
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode agents", err)
	}
	return out, nil
}

func (r *MongoRegistry) ListChildren(ctx context.Context, parentID string) ([]domain.Agent, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := r.agents.Find(ctx, bson.D{{Key: "parentId", Value: parentID}}, opts)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "list children", err)
	}
	var out []domain.Agent
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode children", err)
	}
	return out, nil
}

func (r *MongoRegistry) DeleteAgent(ctx context.Context, agentID string) error {
	res, err := r.agents.DeleteOne(ctx, bson.D{{Key: "agentId", Value: agentID}})
	if err != nil {
		return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "delete agent", err)
	}
	if res.DeletedCount == 0 {
		return coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	return nil
}
