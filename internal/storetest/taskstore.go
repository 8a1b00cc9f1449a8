package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/idgen"
)

var taskTransitions = map[domain.TaskStatus]map[domain.TaskStatus]bool{
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

func taskCanTransition(from, to domain.TaskStatus) bool {
	if from == to {
		return false
	}
	return taskTransitions[from][to]
}

type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]domain.Task
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]domain.Task)}
}

func (s *TaskStore) CreateTask(ctx context.Context, parentTaskID *string, title, description string) (domain.Task, error) {
	if title == "" {
		return domain.Task{}, coorderrors.New(coorderrors.KindValidation, "title is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

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
	s.tasks[task.TaskID] = task
	return task, nil
}

func (s *TaskStore) AssignTask(ctx context.Context, taskID, agentID string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("task %s not found", taskID))
	}
	if !taskCanTransition(task.Status, domain.TaskStatusAssigned) {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation,
			fmt.Sprintf("cannot assign task in status %q", task.Status))
	}
	task.Status = domain.TaskStatusAssigned
	task.AssignedTo = &agentID
	task.UpdatedAt = time.Now().UTC()
	s.tasks[taskID] = task
	return task, nil
}

func (s *TaskStore) UpdateStatus(ctx context.Context, taskID string, status domain.TaskStatus) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("task %s not found", taskID))
	}
	if !taskCanTransition(task.Status, status) {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation,
			fmt.Sprintf("cannot move task from %q to %q", task.Status, status))
	}
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	s.tasks[taskID] = task
	return task, nil
}

func (s *TaskStore) CompleteTask(ctx context.Context, taskID, result string) (domain.Task, error) {
	return s.terminate(taskID, domain.TaskStatusCompleted, result)
}

func (s *TaskStore) FailTask(ctx context.Context, taskID, result string) (domain.Task, error) {
	return s.terminate(taskID, domain.TaskStatusFailed, result)
}

func (s *TaskStore) terminate(taskID string, status domain.TaskStatus, result string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("task %s not found", taskID))
	}
	if !taskCanTransition(task.Status, status) {
		return domain.Task{}, coorderrors.New(coorderrors.KindTransitionViolation,
			fmt.Sprintf("cannot move task from %q to %q", task.Status, status))
	}
	task.Status = status
	task.Result = &result
	task.UpdatedAt = time.Now().UTC()
	s.tasks[taskID] = task
	return task, nil
}

func (s *TaskStore) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return domain.Task{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("task %s not found", taskID))
	}
	return task, nil
}

func (s *TaskStore) GetAgentTasks(ctx context.Context, agentID string) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Task
	for _, t := range s.tasks {
		if t.AssignedTo != nil && *t.AssignedTo == agentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *TaskStore) GetSubtasks(ctx context.Context, parentTaskID string) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Task
	for _, t := range s.tasks {
		if t.ParentTaskID != nil && *t.ParentTaskID == parentTaskID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *TaskStore) ListTasks(ctx context.Context) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Task
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
