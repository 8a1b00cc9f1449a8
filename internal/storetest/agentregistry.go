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

type AgentRegistry struct {
	mu     sync.Mutex
	agents map[string]domain.Agent
}

func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]domain.Agent)}
}

func (r *AgentRegistry) RegisterAgent(ctx context.Context, agentType domain.AgentType, specialization *domain.Specialization, parentID, taskID *string) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

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
	r.agents[agent.AgentID] = agent
	return agent, nil
}

func (r *AgentRegistry) GetAgent(ctx context.Context, agentID string) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	return agent, nil
}

func (r *AgentRegistry) UpdateStatus(ctx context.Context, agentID string, status domain.AgentStatus, taskID *string) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	agent.Status = status
	agent.LastHeartbeat = time.Now().UTC()
	if taskID != nil {
		agent.TaskID = taskID
	}
	r.agents[agentID] = agent
	return agent, nil
}

func (r *AgentRegistry) BindSandbox(ctx context.Context, agentID, sandboxID string, sandboxStatus domain.SandboxStatus) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	agent.SandboxID = &sandboxID
	agent.SandboxStatus = sandboxStatus
	r.agents[agentID] = agent
	return agent, nil
}

func (r *AgentRegistry) SetSandboxStatus(ctx context.Context, agentID string, sandboxStatus domain.SandboxStatus) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	agent.SandboxStatus = sandboxStatus
	r.agents[agentID] = agent
	return agent, nil
}

func (r *AgentRegistry) GetOrCreateSession(ctx context.Context, agentID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return "", coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	if agent.SessionID != nil && *agent.SessionID != "" {
		return *agent.SessionID, nil
	}
	sessionID := idgen.NewSessionID()
	agent.SessionID = &sessionID
	r.agents[agentID] = agent
	return sessionID, nil
}

func (r *AgentRegistry) AddTokens(ctx context.Context, agentID string, inputTokens, outputTokens int64) (domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return domain.Agent{}, coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	now := time.Now().UTC()
	agent.TokenUsage.TotalInputTokens += inputTokens
	agent.TokenUsage.TotalOutputTokens += outputTokens
	agent.TokenUsage.LastUpdated = &now
	r.agents[agentID] = agent
	return agent, nil
}

func (r *AgentRegistry) Heartbeat(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	agent.LastHeartbeat = time.Now().UTC()
	r.agents[agentID] = agent
	return nil
}

func (r *AgentRegistry) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Agent
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *AgentRegistry) ListChildren(ctx context.Context, parentID string) ([]domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Agent
	for _, a := range r.agents {
		if a.ParentID != nil && *a.ParentID == parentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *AgentRegistry) DeleteAgent(ctx context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.agents[agentID]; !ok {
		return coorderrors.New(coorderrors.KindNotFound, fmt.Sprintf("agent %s not found", agentID))
	}
	delete(r.agents, agentID)
	return nil
}
