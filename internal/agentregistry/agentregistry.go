// Package agentregistry implements the agents collection of spec.md
// §4.4: director/specialist identity, lifecycle status, sandbox
// binding, and cumulative token usage.
package agentregistry

import (
	"context"

	"github.com/squadlite/squad-lite/internal/domain"
)

// Registry is the interface every caller (sandbox orchestration, REST
// handlers, watchers) depends on. The concrete MongoDB implementation
// lives in mongo.go; tests use the in-memory fake in internal/storetest.
type Registry interface {
	RegisterAgent(ctx context.Context, agentType domain.AgentType, specialization *domain.Specialization, parentID, taskID *string) (domain.Agent, error)
	GetAgent(ctx context.Context, agentID string) (domain.Agent, error)
	UpdateStatus(ctx context.Context, agentID string, status domain.AgentStatus, taskID *string) (domain.Agent, error)
	BindSandbox(ctx context.Context, agentID, sandboxID string, sandboxStatus domain.SandboxStatus) (domain.Agent, error)
	SetSandboxStatus(ctx context.Context, agentID string, sandboxStatus domain.SandboxStatus) (domain.Agent, error)
	GetOrCreateSession(ctx context.Context, agentID string) (string, error)
	AddTokens(ctx context.Context, agentID string, inputTokens, outputTokens int64) (domain.Agent, error)
	Heartbeat(ctx context.Context, agentID string) error
	ListAgents(ctx context.Context) ([]domain.Agent, error)
	ListChildren(ctx context.Context, parentID string) ([]domain.Agent, error)
	DeleteAgent(ctx context.Context, agentID string) error
}
