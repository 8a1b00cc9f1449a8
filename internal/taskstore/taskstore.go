// Package taskstore implements the task collection of spec.md §4.3: a
// decomposed unit of work assigned to exactly one agent, moving
// forward through a fixed status DAG and never backward.
package taskstore

import (
	"context"

	"github.com/squadlite/squad-lite/internal/domain"
)

// Store is the interface every caller (tools, REST handlers, watchers)
// depends on. The concrete MongoDB implementation lives in mongo.go;
// tests use the in-memory fake in internal/storetest.
type Store interface {
	CreateTask(ctx context.Context, parentTaskID *string, title, description string) (domain.Task, error)
	AssignTask(ctx context.Context, taskID, agentID string) (domain.Task, error)
	UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus) (domain.Task, error)
	CompleteTask(ctx context.Context, taskID, result string) (domain.Task, error)
	FailTask(ctx context.Context, taskID, result string) (domain.Task, error)
	GetTask(ctx context.Context, taskID string) (domain.Task, error)
	GetAgentTasks(ctx context.Context, agentID string) ([]domain.Task, error)
	GetSubtasks(ctx context.Context, parentTaskID string) ([]domain.Task, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
}

// allowedTransitions encodes the forward-only DAG of spec.md §4.3:
// pending -> assigned -> in_progress -> {completed, failed}.
var allowedTransitions = map[domain.TaskStatus]map[domain.TaskStatus]bool{
	domain.TaskStatusPending: {
		domain.TaskStatusAssigned: true,
	},
	domain.TaskStatusAssigned: {
		domain.TaskStatusInProgress: true,
	},
	domain.TaskStatusInProgress: {
		domain.TaskStatusCompleted: true,
		domain.TaskStatusFailed:    true,
	},
}

func canTransition(from, to domain.TaskStatus) bool {
	if from == to {
		return false
	}
	return allowedTransitions[from][to]
}
