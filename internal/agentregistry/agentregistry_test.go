package agentregistry_test

import (
	"context"
	"testing"

	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/storetest"
)

func TestRegisterAgentStartsIdleWithNoSandbox(t *testing.T) {
	registry := storetest.NewAgentRegistry()
	agent, err := registry.RegisterAgent(context.Background(), domain.AgentTypeDirector, nil, nil, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if agent.Status != domain.AgentStatusIdle {
		t.Fatalf("expected idle status, got %s", agent.Status)
	}
	if agent.SandboxStatus != domain.SandboxStatusNone {
		t.Fatalf("expected no sandbox bound yet, got %s", agent.SandboxStatus)
	}
}

func TestGetOrCreateSessionIsStableAcrossCalls(t *testing.T) {
	registry := storetest.NewAgentRegistry()
	ctx := context.Background()
	agent, err := registry.RegisterAgent(ctx, domain.AgentTypeSpecialist, nil, nil, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := registry.GetOrCreateSession(ctx, agent.AgentID)
	if err != nil {
		t.Fatalf("first session: %v", err)
	}
	second, err := registry.GetOrCreateSession(ctx, agent.AgentID)
	if err != nil {
		t.Fatalf("second session: %v", err)
	}
	if first != second {
		t.Fatalf("expected the same session id on repeated calls, got %q then %q", first, second)
	}
}

func TestAddTokensIsMonotonic(t *testing.T) {
	registry := storetest.NewAgentRegistry()
	ctx := context.Background()
	agent, err := registry.RegisterAgent(ctx, domain.AgentTypeSpecialist, nil, nil, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	after1, err := registry.AddTokens(ctx, agent.AgentID, 10, 5)
	if err != nil {
		t.Fatalf("add tokens 1: %v", err)
	}
	after2, err := registry.AddTokens(ctx, agent.AgentID, 3, 2)
	if err != nil {
		t.Fatalf("add tokens 2: %v", err)
	}

	if after1.TokenUsage.TotalInputTokens != 10 || after1.TokenUsage.TotalOutputTokens != 5 {
		t.Fatalf("unexpected totals after first add: %+v", after1.TokenUsage)
	}
	if after2.TokenUsage.TotalInputTokens != 13 || after2.TokenUsage.TotalOutputTokens != 7 {
		t.Fatalf("expected cumulative totals, got %+v", after2.TokenUsage)
	}
}

func TestListChildrenFiltersByParent(t *testing.T) {
	registry := storetest.NewAgentRegistry()
	ctx := context.Background()

	director, err := registry.RegisterAgent(ctx, domain.AgentTypeDirector, nil, nil, nil)
	if err != nil {
		t.Fatalf("register director: %v", err)
	}
	child, err := registry.RegisterAgent(ctx, domain.AgentTypeSpecialist, nil, &director.AgentID, nil)
	if err != nil {
		t.Fatalf("register child: %v", err)
	}
	if _, err := registry.RegisterAgent(ctx, domain.AgentTypeSpecialist, nil, nil, nil); err != nil {
		t.Fatalf("register unrelated: %v", err)
	}

	children, err := registry.ListChildren(ctx, director.AgentID)
	if err != nil {
		t.Fatalf("list children: %v", err)
	}
	if len(children) != 1 || children[0].AgentID != child.AgentID {
		t.Fatalf("expected exactly the one child, got %+v", children)
	}
}

func TestDeleteAgentThenGetNotFound(t *testing.T) {
	registry := storetest.NewAgentRegistry()
	ctx := context.Background()

	agent, err := registry.RegisterAgent(ctx, domain.AgentTypeSpecialist, nil, nil, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.DeleteAgent(ctx, agent.AgentID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := registry.GetAgent(ctx, agent.AgentID); err == nil {
		t.Fatalf("expected not found after delete")
	}
}

func TestBindSandboxUpdatesStatusAndID(t *testing.T) {
	registry := storetest.NewAgentRegistry()
	ctx := context.Background()

	agent, err := registry.RegisterAgent(ctx, domain.AgentTypeSpecialist, nil, nil, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	bound, err := registry.BindSandbox(ctx, agent.AgentID, "sandbox-1", domain.SandboxStatusActive)
	if err != nil {
		t.Fatalf("bind sandbox: %v", err)
	}
	if bound.SandboxID == nil || *bound.SandboxID != "sandbox-1" {
		t.Fatalf("expected sandbox id to be set, got %+v", bound.SandboxID)
	}
	if bound.SandboxStatus != domain.SandboxStatusActive {
		t.Fatalf("expected active sandbox status, got %s", bound.SandboxStatus)
	}
}
