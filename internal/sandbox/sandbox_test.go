package sandbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/storetest"
)

// countingProvider tracks how many times sandbox-level setup calls
// happen, so tests can assert lazy-creation-once semantics, and lets
// a test hold StartProcess open until told to finish.
type countingProvider struct {
	mu           sync.Mutex
	createCalls  int
	uploadCalls  int
	killCalls    []string
	destroyCalls int
	pauseCalls   int
	resumeCalls  int

	exitCode int
	procErr  error
	release  chan struct{}
}

func newCountingProvider() *countingProvider {
	return &countingProvider{release: make(chan struct{})}
}

func (p *countingProvider) CreateSandbox(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	return "sandbox-1", nil
}

func (p *countingProvider) UploadRuntimeBundle(ctx context.Context, sandboxID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploadCalls++
	return nil
}

func (p *countingProvider) StartProcess(ctx context.Context, sandboxID string, args []string, env map[string]string, out OutputFunc) (Process, error) {
	if p.procErr != nil {
		return nil, p.procErr
	}
	out(StreamStdout, "hello")
	return &blockingProcess{release: p.release, exitCode: p.exitCode}, nil
}

func (p *countingProvider) Execute(ctx context.Context, sandboxID string, command []string, env map[string]string, timeoutMs int, out OutputFunc) (ExecResult, error) {
	return ExecResult{ExitCode: 0}, nil
}

func (p *countingProvider) KillProcess(ctx context.Context, sandboxID, agentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killCalls = append(p.killCalls, agentID)
	return nil
}

func (p *countingProvider) Pause(ctx context.Context, sandboxID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseCalls++
	return nil
}

func (p *countingProvider) Resume(ctx context.Context, sandboxID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumeCalls++
	return nil
}

func (p *countingProvider) Destroy(ctx context.Context, sandboxID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyCalls++
	return nil
}

// blockingProcess waits on a channel so tests can control exactly when
// RunAgent's call to Wait returns.
type blockingProcess struct {
	release  chan struct{}
	exitCode int
	killed   bool
}

func (p *blockingProcess) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.release:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return p.exitCode, nil
}

func (p *blockingProcess) Kill() error {
	p.killed = true
	return nil
}

// newTestOrchestrator wires an Orchestrator against the same in-memory
// fakes production wires it against, so registering an agent actually
// attaches a sandbox record and binds the agent's sandboxStatus (spec.md
// §3) instead of silently no-op'ing.
func newTestOrchestrator(provider Provider) (*Orchestrator, *storetest.SandboxStore, *storetest.AgentRegistry) {
	sandboxes := storetest.NewSandboxStore()
	registry := storetest.NewAgentRegistry()
	return NewOrchestrator(provider, sandboxes, registry, nil), sandboxes, registry
}

// registerAgent creates the agent record BindSandbox and SetSandboxStatus
// require to exist (spec.md §4.4: the agent is always created before
// the orchestrator ever sees it) and returns its real agentId.
func registerAgent(t *testing.T, registry *storetest.AgentRegistry, agentType domain.AgentType) string {
	t.Helper()
	agent, err := registry.RegisterAgent(context.Background(), agentType, nil, nil, nil)
	if err != nil {
		t.Fatalf("register agent record: %v", err)
	}
	return agent.AgentID
}

func TestRegisterCreatesSandboxOnlyOnce(t *testing.T) {
	provider := newCountingProvider()
	o, _, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agent1 := registerAgent(t, registry, domain.AgentTypeDirector)
	agent2 := registerAgent(t, registry, domain.AgentTypeSpecialist)

	if _, err := o.Register(ctx, agent1, domain.AgentTypeDirector, nil); err != nil {
		t.Fatalf("register 1: %v", err)
	}
	if _, err := o.Register(ctx, agent2, domain.AgentTypeSpecialist, nil); err != nil {
		t.Fatalf("register 2: %v", err)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if provider.createCalls != 1 || provider.uploadCalls != 1 {
		t.Fatalf("expected one create and one upload, got create=%d upload=%d", provider.createCalls, provider.uploadCalls)
	}
	if !o.IsReady() {
		t.Fatalf("expected orchestrator to be ready after first register")
	}
}

func TestRegisterAttachesSandboxRecordAndBindsAgent(t *testing.T) {
	provider := newCountingProvider()
	o, sandboxes, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agentID := registerAgent(t, registry, domain.AgentTypeSpecialist)

	sandboxID, err := o.Register(ctx, agentID, domain.AgentTypeSpecialist, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	record, err := sandboxes.Get(ctx, sandboxID, agentID)
	if err != nil {
		t.Fatalf("get sandbox record: %v", err)
	}
	if record.Status != domain.SandboxRecordActive {
		t.Fatalf("expected an active sandbox record, got %s", record.Status)
	}

	agent, err := registry.GetAgent(ctx, agentID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if agent.SandboxID == nil || *agent.SandboxID != sandboxID {
		t.Fatalf("expected agent bound to sandbox %s, got %+v", sandboxID, agent.SandboxID)
	}
	if agent.SandboxStatus != domain.SandboxStatusActive {
		t.Fatalf("expected active sandbox status, got %s", agent.SandboxStatus)
	}
}

func TestRunAgentRejectsConcurrentRunForSameAgent(t *testing.T) {
	provider := newCountingProvider()
	o, _, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agentID := registerAgent(t, registry, domain.AgentTypeSpecialist)

	if _, err := o.Register(ctx, agentID, domain.AgentTypeSpecialist, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_, _ = o.RunAgent(ctx, agentID, "task-1", "do the thing", nil, nil)
		close(done)
	}()

	waitForStatus(t, o, agentID, ProcessRunning)

	_, err := o.RunAgent(ctx, agentID, "task-1", "do it again", nil, nil)
	if err == nil {
		t.Fatalf("expected the second concurrent run to be rejected")
	}
	if !coorderrors.Is(err, coorderrors.KindAgentAlreadyRunning) {
		t.Fatalf("expected KindAgentAlreadyRunning, got %v", err)
	}

	close(provider.release)
	<-done
}

func TestRunAgentRejectsUnregisteredAgent(t *testing.T) {
	provider := newCountingProvider()
	o, _, _ := newTestOrchestrator(provider)

	_, err := o.RunAgent(context.Background(), "ghost", "task-1", "do the thing", nil, nil)
	if err == nil {
		t.Fatalf("expected an error for an unregistered agent")
	}
	if !coorderrors.Is(err, coorderrors.KindSandboxNotFound) {
		t.Fatalf("expected KindSandboxNotFound, got %v", err)
	}
}

func TestRunAgentCapturesStdoutAndMarksCompleted(t *testing.T) {
	provider := newCountingProvider()
	close(provider.release)
	o, _, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agentID := registerAgent(t, registry, domain.AgentTypeSpecialist)

	if _, err := o.Register(ctx, agentID, domain.AgentTypeSpecialist, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	stdout, err := o.RunAgent(ctx, agentID, "task-1", "do the thing", nil, nil)
	if err != nil {
		t.Fatalf("run agent: %v", err)
	}
	if stdout != "hello" {
		t.Fatalf("expected captured stdout, got %q", stdout)
	}
	status, ok := o.Status(agentID)
	if !ok || status != ProcessCompleted {
		t.Fatalf("expected completed status, got %v (ok=%v)", status, ok)
	}
}

func TestRunAgentMarksErrorOnNonZeroExit(t *testing.T) {
	provider := newCountingProvider()
	provider.exitCode = 1
	close(provider.release)
	o, _, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agentID := registerAgent(t, registry, domain.AgentTypeSpecialist)

	if _, err := o.Register(ctx, agentID, domain.AgentTypeSpecialist, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := o.RunAgent(ctx, agentID, "task-1", "do the thing", nil, nil); err == nil {
		t.Fatalf("expected an error on non-zero exit")
	}
	status, _ := o.Status(agentID)
	if status != ProcessError {
		t.Fatalf("expected error status, got %v", status)
	}
}

func TestKillMarksProcessKilledWithoutErrorAfterExit(t *testing.T) {
	provider := newCountingProvider()
	o, _, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agentID := registerAgent(t, registry, domain.AgentTypeSpecialist)

	if _, err := o.Register(ctx, agentID, domain.AgentTypeSpecialist, nil); err != nil {
		t.Fatalf("register: %v", err)
	}

	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = o.RunAgent(ctx, agentID, "task-1", "do the thing", nil, nil)
		close(done)
	}()
	waitForStatus(t, o, agentID, ProcessRunning)

	if err := o.Kill(ctx, agentID); err != nil {
		t.Fatalf("kill: %v", err)
	}
	close(provider.release)
	<-done

	if runErr != nil {
		t.Fatalf("expected RunAgent to return cleanly after a kill, got %v", runErr)
	}
	status, _ := o.Status(agentID)
	if status != ProcessKilled {
		t.Fatalf("expected killed status, got %v", status)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.killCalls) != 1 || provider.killCalls[0] != agentID {
		t.Fatalf("expected provider KillProcess called once for %s, got %v", agentID, provider.killCalls)
	}
}

func TestKillSandboxResetsOrchestratorState(t *testing.T) {
	provider := newCountingProvider()
	close(provider.release)
	o, _, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agentID := registerAgent(t, registry, domain.AgentTypeSpecialist)

	if _, err := o.Register(ctx, agentID, domain.AgentTypeSpecialist, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.KillSandbox(ctx); err != nil {
		t.Fatalf("kill sandbox: %v", err)
	}

	if _, ok := o.SandboxID(); ok {
		t.Fatalf("expected no sandbox id after KillSandbox")
	}
	if o.IsReady() {
		t.Fatalf("expected not ready after KillSandbox")
	}
	if o.AgentCount() != 0 {
		t.Fatalf("expected no agents after KillSandbox")
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if provider.destroyCalls != 1 {
		t.Fatalf("expected exactly one destroy call, got %d", provider.destroyCalls)
	}
}

func TestKillSandboxMovesEveryAttachedAgentToKilled(t *testing.T) {
	provider := newCountingProvider()
	close(provider.release)
	o, sandboxes, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agent1 := registerAgent(t, registry, domain.AgentTypeDirector)
	agent2 := registerAgent(t, registry, domain.AgentTypeSpecialist)

	sandboxID, err := o.Register(ctx, agent1, domain.AgentTypeDirector, nil)
	if err != nil {
		t.Fatalf("register agent1: %v", err)
	}
	if _, err := o.Register(ctx, agent2, domain.AgentTypeSpecialist, nil); err != nil {
		t.Fatalf("register agent2: %v", err)
	}

	if err := o.KillSandbox(ctx); err != nil {
		t.Fatalf("kill sandbox: %v", err)
	}

	for _, agentID := range []string{agent1, agent2} {
		agent, err := registry.GetAgent(ctx, agentID)
		if err != nil {
			t.Fatalf("get agent %s: %v", agentID, err)
		}
		if agent.SandboxStatus != domain.SandboxStatusKilled {
			t.Fatalf("expected agent %s sandboxStatus killed, got %s", agentID, agent.SandboxStatus)
		}
		record, err := sandboxes.Get(ctx, sandboxID, agentID)
		if err != nil {
			t.Fatalf("get sandbox record %s: %v", agentID, err)
		}
		if record.Status != domain.SandboxRecordKilled {
			t.Fatalf("expected sandbox record %s killed, got %s", agentID, record.Status)
		}
	}
}

func TestPauseAndResumeRequireAnExistingSandbox(t *testing.T) {
	provider := newCountingProvider()
	o, _, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agentID := registerAgent(t, registry, domain.AgentTypeSpecialist)

	if err := o.Pause(ctx); err == nil {
		t.Fatalf("expected pause without a sandbox to fail")
	}

	if _, err := o.Register(ctx, agentID, domain.AgentTypeSpecialist, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !o.IsPaused() {
		t.Fatalf("expected paused")
	}
	if err := o.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if o.IsPaused() {
		t.Fatalf("expected not paused after resume")
	}
}

func TestPauseAndResumeUpdateRecordsAndAgentSandboxStatus(t *testing.T) {
	provider := newCountingProvider()
	o, sandboxes, registry := newTestOrchestrator(provider)
	ctx := context.Background()
	agentID := registerAgent(t, registry, domain.AgentTypeSpecialist)

	sandboxID, err := o.Register(ctx, agentID, domain.AgentTypeSpecialist, nil)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := o.Pause(ctx); err != nil {
		t.Fatalf("pause: %v", err)
	}
	agent, err := registry.GetAgent(ctx, agentID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if agent.SandboxStatus != domain.SandboxStatusPaused {
		t.Fatalf("expected paused sandbox status, got %s", agent.SandboxStatus)
	}
	record, err := sandboxes.Get(ctx, sandboxID, agentID)
	if err != nil {
		t.Fatalf("get sandbox record: %v", err)
	}
	if record.Status != domain.SandboxRecordPaused {
		t.Fatalf("expected paused sandbox record, got %s", record.Status)
	}

	if err := o.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	agent, err = registry.GetAgent(ctx, agentID)
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if agent.SandboxStatus != domain.SandboxStatusActive {
		t.Fatalf("expected active sandbox status after resume, got %s", agent.SandboxStatus)
	}
	record, err = sandboxes.Get(ctx, sandboxID, agentID)
	if err != nil {
		t.Fatalf("get sandbox record: %v", err)
	}
	if record.Status != domain.SandboxRecordActive {
		t.Fatalf("expected active sandbox record after resume, got %s", record.Status)
	}
}

func waitForStatus(t *testing.T, o *Orchestrator, agentID string, want ProcessStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if status, ok := o.Status(agentID); ok && status == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("agent %s never reached status %s", agentID, want)
}
