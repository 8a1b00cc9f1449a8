package taskstore

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

type MongoStore struct {
	tasks *mongo.Collection
}

func NewMongoStore(tasks *mongo.Collection) *MongoStore {
	return &MongoStore{tasks: tasks}
}

func (s *MongoStore) CreateTask(ctx context.Context, parentTaskID *string, title, description string) (domain.Task, error) {
	if title == "" {
		return domain.Task{}, coorderrors.New(coorderrors.KindValidation, "title is required")
	}
	now := time.Now().UTC()
	task := domain.Task{
		TaskID:       idgen.New(),
		ParentTaskID: parentTaskID,
		Title:        title,
		Description:  description,
		Status:       domain.TaskStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.tasks.InsertOne(ctx, task); err != nil {
		return domain.Task{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "insert task", err)
	}
	return task, nil
}

// AssignTask moves a pending task to assigned and binds it to agentID.
// It is the only path that sets assignedTo, mirroring spec.md §4.3's
// rule that a task belongs to exactly one agent once assigned.
func (s *MongoStore) AssignTask(ctx context.Context, taskID, agentID string) (domain.Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !canTransition(task.Status, domain.TaskStatusAssigned) {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation,
			fmt.Sprintf("cannot assign task in status %q", task.Status))
	}
	now := time.Now().UTC()
	filter := bson.D{{Key: "taskId", Value: taskID}, {Key: "status", Value: task.Status}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: domain.TaskStatusAssigned},
		{Key: "assignedTo", Value: agentID},
		{Key: "updatedAt", Value: now},
	}}}
	res, err := s.tasks.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.Task{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "assign task", err)
	}
	if res.MatchedCount == 0 {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation, "task status changed concurrently")
	}
	return s.GetTask(ctx, taskID)
}

// UpdateStatus enforces the forward-only transition DAG. Invalid
// transitions (including no-ops) are rejected with KindTransitionViolation
// rather than silently applied.
func (s *MongoStore) UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus) (domain.Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !canTransition(task.Status, status) {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation,
			fmt.Sprintf("cannot move task from %q to %q", task.Status, status))
	}
	now := time.Now().UTC()
	filter := bson.D{{Key: "taskId", Value: taskID}, {Key: "status", Value: task.Status}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: status},
		{Key: "updatedAt", Value: now},
	}}}
	res, err := s.tasks.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.Task{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "update task status", err)
	}
	if res.MatchedCount == 0 {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation, "task status changed concurrently")
	}
	return s.GetTask(ctx, taskID)
}

func (s *MongoStore) CompleteTask(ctx context.Context, taskID, result string) (domain.Task, error) {
	return s.terminate(ctx, taskID, domain.TaskStatusCompleted, result)
}

func (s *MongoStore) FailTask(ctx context.Context, taskID, result string) (domain.Task, error) {
	return s.terminate(ctx, taskID, domain.TaskStatusFailed, result)
}

func (s *MongoStore) terminate(ctx context.Context, taskID string, status domain.TaskStatus, result string) (domain.Task, error) {
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if !canTransition(task.Status, status) {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation,
			fmt.Sprintf("cannot move task from %q to %q", task.Status, status))
	}
	now := time.Now().UTC()
	filter := bson.D{{Key: "taskId", Value: taskID}, {Key: "status", Value: task.Status}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: status},
		{Key: "result", Value: result},
		{Key: "updatedAt", Value: now},
	}}}
	res, err := s.tasks.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.Task{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "terminate task", err)
	}
	if res.MatchedCount == 0 {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation, "task status changed concurrently")
	}
	return s.GetTask(ctx, taskID)
}

func (s *MongoStore) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	var task domain.Task
	err := s.tasks.FindOne(ctx, bson.D{{Key: "taskId", Value: taskID}}).Decode(&task)
	if err == mongo.ErrNoDocuments {
		return domain.Task{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("task %s not found", taskID))
	}
	if err != nil {
		return domain.Task{}, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find task", err)
	}
	return task, nil
}

func (s *MongoStore) GetAgentTasks(ctx context.Context, agentID string) ([]domain.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.tasks.Find(ctx, bson.D{{Key: "assignedTo", Value: agentID}}, opts)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find agent tasks", err)
	}
	var out []domain.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode agent tasks", err)
	}
	return out, nil
}

// ListTasks supports GET /api/tasks: every task, oldest first.
func (s *MongoStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.tasks.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find tasks", err)
	}
	var out []domain.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode tasks", err)
	}
	return out, nil
}

func (s *MongoStore) GetSubtasks(ctx context.Context, parentTaskID string) ([]domain.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cur, err := s.tasks.Find(ctx, bson.D{{Key: "parentTaskId", Value: parentTaskID}}, opts)
	if err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "find subtasks", err)
	}
	var out []domain.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, coorderrors.Wrap(coorderrors.KindStorageUnavailable, "decode subtasks", err)
	}
	return out, nil
}
