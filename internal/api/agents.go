package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/eventbus"
	"github.com/squadlite/squad-lite/internal/runtime"
)

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		agents, err := s.Agents.ListAgents(r.Context())
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, agents)
	case http.MethodPost:
		s.handleCreateAgent(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleStaleAgents is the ambient liveness sweep addition of
// SPEC_FULL.md §2 (C5/C9): agents claiming status working/waiting whose
// lastHeartbeat is older than thresholdSeconds (default 60) have
// likely died without updating their own status. This never mutates
// anything; the response is advisory, mirroring the same read the
// cmd/controlplaned sweep subcommand performs.
func (s *Server) handleStaleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	threshold := time.Duration(parseLimit(r.URL.Query().Get("thresholdSeconds"), 60)) * time.Second
	agents, err := s.Agents.ListAgents(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	stale := StaleAgents(agents, time.Now().UTC(), threshold)
	writeJSON(w, http.StatusOK, map[string]any{
		"thresholdSeconds": int(threshold.Seconds()),
		"agents":           stale,
	})
}

// StaleAgents is plain, dependency-free filtering logic shared by the
// REST handler above and the cmd/controlplaned sweep subcommand.
func StaleAgents(agents []domain.Agent, now time.Time, threshold time.Duration) []domain.Agent {
	out := make([]domain.Agent, 0)
	for _, a := range agents {
		if a.Status != domain.AgentStatusWorking && a.Status != domain.AgentStatusWaiting {
			continue
		}
		if now.Sub(a.LastHeartbeat) >= threshold {
			out = append(out, a)
		}
	}
	return out
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Type           string  `json:"type"`
		ParentID       *string `json:"parentId"`
		Specialization *string `json:"specialization"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	agentType := domain.AgentType(payload.Type)
	if agentType != domain.AgentTypeDirector && agentType != domain.AgentTypeSpecialist {
		writeBadRequest(w, "type must be director or specialist")
		return
	}
	var spec *domain.Specialization
	if payload.Specialization != nil {
		v := domain.Specialization(*payload.Specialization)
		spec = &v
	}
	agent, err := s.Agents.RegisterAgent(r.Context(), agentType, spec, payload.ParentID, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(eventbus.EventAgentCreated, agent)
	}
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Server) handleAgentItem(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/agents/")
	if len(segments) == 0 {
		writeStoreError(w, coorderrors.New(coorderrors.KindNotFound, "agent id required"))
		return
	}
	agentID := segments[0]

	if len(segments) == 1 {
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w)
			return
		}
		s.handleKillAgent(w, r, agentID)
		return
	}

	switch segments[1] {
	case "status":
		s.handleAgentStatus(w, r, agentID)
	case "task":
		s.handleAgentTask(w, r, agentID)
	case "restart":
		s.handleAgentRestart(w, r, agentID)
	default:
		writeStoreError(w, coorderrors.New(coorderrors.KindNotFound, "unknown agent action"))
	}
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	agent, err := s.Agents.GetAgent(r.Context(), agentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

// handleAgentTask creates a task for the agent, assigns it, and kicks
// off its runtime asynchronously (spec.md §6). For a director this is
// the only way its process ever starts; a specialist's process is
// instead started by the task watcher once its own parent assigns it
// a subtask (spec.md §4.8) — nothing stops a caller from using this
// endpoint against a specialist directly, which behaves the same way.
func (s *Server) handleAgentTask(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var payload struct {
		Task string `json:"task"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil || payload.Task == "" {
		writeBadRequest(w, "task is required")
		return
	}

	agent, err := s.Agents.GetAgent(r.Context(), agentID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	task, err := s.Tasks.CreateTask(r.Context(), nil, "Agent task", payload.Task)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if _, err := s.Tasks.AssignTask(r.Context(), task.TaskID, agentID); err != nil {
		writeStoreError(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(eventbus.EventTaskCreated, task)
	}

	s.runAgentAsync(agent, task.TaskID, payload.Task)

	writeJSON(w, http.StatusOK, map[string]any{
		"taskId":  task.TaskID,
		"status":  "assigned",
		"agentId": agentID,
	})
}

// runAgentAsync registers the agent in the shared sandbox and runs its
// runtime in its own goroutine, never blocking the HTTP handler on the
// LLM call (spec.md §5). It mirrors internal/watchers' task-launch
// path for the director case that watcher never sees.
func (s *Server) runAgentAsync(agent domain.Agent, taskID, task string) {
	go func() {
		ctx := context.Background()

		if _, err := s.Tasks.UpdateStatus(ctx, taskID, domain.TaskStatusInProgress); err != nil {
			log.Printf("api: move task %s to in_progress: %v", taskID, err)
			return
		}
		if _, err := s.Orchestrator.Register(ctx, agent.AgentID, agent.Type, agent.Specialization); err != nil {
			s.failTask(ctx, taskID, err)
			return
		}
		if s.Events != nil {
			s.Events.Publish(eventbus.EventAgentStatus, map[string]any{
				"agentId": agent.AgentID,
				"status":  domain.AgentStatusWorking,
			})
		}

		stdout, err := s.Orchestrator.RunAgent(ctx, agent.AgentID, taskID, task, agent.ParentID, s.RuntimeEnv)
		if err != nil {
			s.failTask(ctx, taskID, err)
			return
		}

		result := runtime.ExtractResult(stdout, agent.Type)
		if _, err := s.Tasks.CompleteTask(ctx, taskID, result); err != nil {
			log.Printf("api: complete task %s: %v", taskID, err)
			return
		}
		if s.Events != nil {
			s.Events.Publish(eventbus.EventTaskStatus, map[string]any{
				"taskId": taskID,
				"status": domain.TaskStatusCompleted,
			})
		}
	}()
}

func (s *Server) failTask(ctx context.Context, taskID string, cause error) {
	if _, err := s.Tasks.FailTask(ctx, taskID, "Error: "+cause.Error()); err != nil {
		log.Printf("api: fail task %s: %v", taskID, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(eventbus.EventTaskStatus, map[string]any{
			"taskId": taskID,
			"status": domain.TaskStatusFailed,
		})
	}
}

// handleKillAgent implements DELETE /api/agents/:id. The underlying
// agent record settles to status completed with sandboxStatus killed
// (spec.md §9 open question 2); the response's own status field
// reports the action taken, not the stored value.
func (s *Server) handleKillAgent(w http.ResponseWriter, r *http.Request, agentID string) {
	ctx := r.Context()
	_ = s.Orchestrator.Kill(ctx, agentID)

	if _, err := s.Agents.UpdateStatus(ctx, agentID, domain.AgentStatusCompleted, nil); err != nil {
		writeStoreError(w, err)
		return
	}
	if _, err := s.Agents.SetSandboxStatus(ctx, agentID, domain.SandboxStatusKilled); err != nil {
		writeStoreError(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(eventbus.EventAgentKilled, map[string]any{"agentId": agentID})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agentId":      agentID,
		"status":       "killed",
		"checkpointId": nil,
	})
}

func (s *Server) handleAgentRestart(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	agent, err := s.Agents.UpdateStatus(r.Context(), agentID, domain.AgentStatusIdle, nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(eventbus.EventAgentStatus, agent)
	}
	writeJSON(w, http.StatusCreated, agent)
}
