// Package sandbox implements the sandbox orchestrator of spec.md
// §4.5: one shared remote sandbox serving every agent process of a
// session, created lazily and torn down only by explicit kill.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/squadlite/squad-lite/internal/agentregistry"
	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/sandboxstore"
)

// ProcessStatus is the lifecycle of one agent's process inside the
// shared sandbox, distinct from domain.AgentStatus (the LLM-loop
// status persisted to the agents collection).
type ProcessStatus string

const (
	ProcessNotStarted ProcessStatus = "not_started"
	ProcessRunning    ProcessStatus = "running"
	ProcessCompleted  ProcessStatus = "completed"
	ProcessError      ProcessStatus = "error"
	ProcessKilled     ProcessStatus = "killed"
)

type agentEntry struct {
	agentType      domain.AgentType
	specialization *domain.Specialization
	status         ProcessStatus
	proc           Process
}

// Orchestrator owns the single shared sandbox and the set of agents
// registered against it. sandboxes and registry are the durable
// projections (spec.md §3): every state transition this type makes in
// memory is mirrored to the sandboxes collection and the attached
// agents' sandboxStatus.
type Orchestrator struct {
	provider  Provider
	sandboxes sandboxstore.Store
	registry  agentregistry.Registry
	output    OutputFunc3

	mu        sync.Mutex
	sandboxID string
	ready     bool
	paused    bool
	agents    map[string]*agentEntry
}

// OutputFunc3 is the orchestrator-level output handler of spec.md
// §4.5: (agentId, stream, data).
type OutputFunc3 func(agentID string, stream OutputStream, data string)

func NewOrchestrator(provider Provider, sandboxes sandboxstore.Store, registry agentregistry.Registry, output OutputFunc3) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		sandboxes: sandboxes,
		registry:  registry,
		output:    output,
		agents:    make(map[string]*agentEntry),
	}
}

func (o *Orchestrator) SandboxID() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sandboxID, o.sandboxID != ""
}

func (o *Orchestrator) IsReady() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ready
}

// Register performs lazy sandbox creation on the first call: if no
// sandbox exists yet, one is provisioned and the runtime bundle is
// uploaded and verified once. Subsequent agents reuse it without
// re-setup. Every newly attached agent gets a sandbox record (spec.md
// §3, creating→active) and its own sandboxStatus bound to active.
func (o *Orchestrator) Register(ctx context.Context, agentID string, agentType domain.AgentType, specialization *domain.Specialization) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sandboxID == "" {
		id, err := o.provider.CreateSandbox(ctx)
		if err != nil {
			return "", coorderrors.Wrap(coorderrors.KindSandboxCreationFailure, "create sandbox", err)
		}
		o.sandboxID = id
	}
	if !o.ready {
		if err := o.provider.UploadRuntimeBundle(ctx, o.sandboxID); err != nil {
			return "", coorderrors.Wrap(coorderrors.KindSandboxCreationFailure, "upload runtime bundle", err)
		}
		o.ready = true
	}

	if _, exists := o.agents[agentID]; !exists {
		o.agents[agentID] = &agentEntry{
			agentType:      agentType,
			specialization: specialization,
			status:         ProcessNotStarted,
		}
		metadata := domain.SandboxMetadata{AgentType: agentType, Specialization: specialization}
		if _, err := o.sandboxes.Attach(ctx, o.sandboxID, agentID, metadata, domain.SandboxResources{}); err != nil {
			return "", coorderrors.Wrap(coorderrors.KindStorageUnavailable, "attach sandbox record", err)
		}
		if _, err := o.registry.BindSandbox(ctx, agentID, o.sandboxID, domain.SandboxStatusActive); err != nil {
			return "", coorderrors.Wrap(coorderrors.KindStorageUnavailable, "bind agent sandbox", err)
		}
	}
	return o.sandboxID, nil
}

// RunAgent launches the agent runtime CLI inside the shared sandbox
// and blocks until it exits, returning its full captured stdout (for
// the caller's sentinel-based result extraction, spec.md §4.6) along
// with any failure. The task body travels only through env (spec.md
// §7); args carry only UUID-shaped identifiers and enum values.
// Concurrent calls for an agentID already running are rejected.
func (o *Orchestrator) RunAgent(ctx context.Context, agentID, taskID, task string, parentID *string, env map[string]string) (string, error) {
	o.mu.Lock()
	entry, ok := o.agents[agentID]
	if !ok {
		o.mu.Unlock()
		return "", coorderrors.New(coorderrors.KindSandboxNotFound, fmt.Sprintf("agent %s not registered", agentID))
	}
	if entry.status == ProcessRunning {
		o.mu.Unlock()
		return "", coorderrors.New(coorderrors.KindAgentAlreadyRunning, fmt.Sprintf("agent %s already running", agentID))
	}
	sandboxID := o.sandboxID
	o.mu.Unlock()

	args := []string{"--agentId", agentID, "--agentType", string(entry.agentType)}
	if taskID != "" {
		args = append(args, "--taskId", taskID)
	}
	if entry.specialization != nil {
		args = append(args, "--specialization", string(*entry.specialization))
	}
	if parentID != nil {
		args = append(args, "--parentId", *parentID)
	}

	procEnv := make(map[string]string, len(env)+1)
	for k, v := range env {
		procEnv[k] = v
	}
	procEnv["AGENT_TASK"] = task

	var stdout strings.Builder
	var mu sync.Mutex
	out := func(stream OutputStream, data string) {
		if stream == StreamStdout {
			mu.Lock()
			stdout.WriteString(data)
			mu.Unlock()
		}
		if o.output != nil {
			o.output(agentID, stream, data)
		}
	}

	proc, err := o.provider.StartProcess(ctx, sandboxID, args, procEnv, out)
	if err != nil {
		o.mu.Lock()
		entry.status = ProcessError
		o.mu.Unlock()
		return "", coorderrors.Wrap(coorderrors.KindSandboxCreationFailure, "start agent process", err)
	}

	o.mu.Lock()
	entry.proc = proc
	entry.status = ProcessRunning
	o.mu.Unlock()

	exitCode, waitErr := proc.Wait(ctx)

	mu.Lock()
	captured := stdout.String()
	mu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	if entry.status == ProcessKilled {
		return captured, nil
	}
	if waitErr != nil || exitCode != 0 {
		entry.status = ProcessError
		if waitErr != nil {
			return captured, coorderrors.Wrap(coorderrors.KindCommandExecutionFailure, "agent process failed", waitErr)
		}
		return captured, coorderrors.New(coorderrors.KindCommandExecutionFailure, fmt.Sprintf("agent process exited %d", exitCode))
	}
	entry.status = ProcessCompleted
	return captured, nil
}

// Status reports the in-memory process status for an agent, used by
// the change-stream watcher's double-start guard alongside the
// caller's own started-set check.
func (o *Orchestrator) Status(agentID string) (ProcessStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.agents[agentID]
	if !ok {
		return "", false
	}
	return entry.status, true
}

// Kill marks the agent's process killed and best-effort terminates it
// inside the sandbox; the sandbox itself stays alive to serve peers.
func (o *Orchestrator) Kill(ctx context.Context, agentID string) error {
	o.mu.Lock()
	entry, ok := o.agents[agentID]
	sandboxID := o.sandboxID
	o.mu.Unlock()
	if !ok {
		return coorderrors.New(coorderrors.KindSandboxNotFound, fmt.Sprintf("agent %s not registered", agentID))
	}

	o.mu.Lock()
	entry.status = ProcessKilled
	o.mu.Unlock()

	if sandboxID == "" {
		return nil
	}
	if err := o.provider.KillProcess(ctx, sandboxID, agentID); err != nil {
		return coorderrors.Wrap(coorderrors.KindCommandExecutionFailure, "kill process", err)
	}
	return nil
}

// KillSandbox marks every attached agent killed, tears down the
// remote sandbox, and releases all in-memory state. Every attached
// agent's sandbox record and sandboxStatus move to killed too (spec.md
// §3): this is the one place besides handleKillAgent that ever sets
// sandboxStatus=killed, but here it applies to the whole roster at
// once, not a single agent.
func (o *Orchestrator) KillSandbox(ctx context.Context) error {
	o.mu.Lock()
	sandboxID := o.sandboxID
	agentIDs := o.agentIDsLocked()
	for _, entry := range o.agents {
		entry.status = ProcessKilled
	}
	o.mu.Unlock()

	if sandboxID == "" {
		return nil
	}
	if err := o.provider.Destroy(ctx, sandboxID); err != nil {
		return coorderrors.Wrap(coorderrors.KindCommandExecutionFailure, "destroy sandbox", err)
	}

	for _, agentID := range agentIDs {
		if _, err := o.sandboxes.SetStatus(ctx, sandboxID, agentID, domain.SandboxRecordKilled); err != nil {
			return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "set sandbox record killed", err)
		}
		if _, err := o.registry.SetSandboxStatus(ctx, agentID, domain.SandboxStatusKilled); err != nil {
			return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "set agent sandbox status killed", err)
		}
	}

	o.mu.Lock()
	o.sandboxID = ""
	o.ready = false
	o.paused = false
	o.agents = make(map[string]*agentEntry)
	o.mu.Unlock()
	return nil
}

// Pause and Resume affect the entire shared sandbox, hence every
// attached agent's record and sandboxStatus at once (spec.md §4.5).
func (o *Orchestrator) Pause(ctx context.Context) error {
	o.mu.Lock()
	sandboxID := o.sandboxID
	agentIDs := o.agentIDsLocked()
	o.mu.Unlock()
	if sandboxID == "" {
		return coorderrors.New(coorderrors.KindSandboxNotFound, "no sandbox created")
	}
	if err := o.provider.Pause(ctx, sandboxID); err != nil {
		return coorderrors.Wrap(coorderrors.KindCommandExecutionFailure, "pause sandbox", err)
	}
	for _, agentID := range agentIDs {
		if _, err := o.sandboxes.SetStatus(ctx, sandboxID, agentID, domain.SandboxRecordPaused); err != nil {
			return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "set sandbox record paused", err)
		}
		if _, err := o.registry.SetSandboxStatus(ctx, agentID, domain.SandboxStatusPaused); err != nil {
			return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "set agent sandbox status paused", err)
		}
	}
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	sandboxID := o.sandboxID
	agentIDs := o.agentIDsLocked()
	o.mu.Unlock()
	if sandboxID == "" {
		return coorderrors.New(coorderrors.KindSandboxNotFound, "no sandbox created")
	}
	if err := o.provider.Resume(ctx, sandboxID); err != nil {
		return coorderrors.Wrap(coorderrors.KindCommandExecutionFailure, "resume sandbox", err)
	}
	for _, agentID := range agentIDs {
		if _, err := o.sandboxes.SetStatus(ctx, sandboxID, agentID, domain.SandboxRecordActive); err != nil {
			return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "set sandbox record active", err)
		}
		if _, err := o.registry.SetSandboxStatus(ctx, agentID, domain.SandboxStatusActive); err != nil {
			return coorderrors.Wrap(coorderrors.KindStorageUnavailable, "set agent sandbox status active", err)
		}
	}
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// Execute runs a one-shot command inside the shared sandbox and
// classifies timeouts distinctly from other failures.
func (o *Orchestrator) Execute(ctx context.Context, agentID, command string, args []string, env map[string]string, timeoutMs int) (ExecResult, error) {
	o.mu.Lock()
	sandboxID := o.sandboxID
	o.mu.Unlock()
	if sandboxID == "" {
		return ExecResult{}, coorderrors.New(coorderrors.KindSandboxNotFound, "no sandbox created")
	}
	out := func(stream OutputStream, data string) {
		if o.output != nil {
			o.output(agentID, stream, data)
		}
	}
	full := append([]string{command}, args...)
	if timeoutMs <= 0 {
		timeoutMs = 30000
	}
	return o.provider.Execute(ctx, sandboxID, full, env, timeoutMs, out)
}

// AgentCount and AgentIDs support GET /api/sandbox/status.
func (o *Orchestrator) AgentCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.agents)
}

func (o *Orchestrator) AgentIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agentIDsLocked()
}

// agentIDsLocked requires o.mu to already be held.
func (o *Orchestrator) agentIDsLocked() []string {
	ids := make([]string, 0, len(o.agents))
	for id := range o.agents {
		ids = append(ids, id)
	}
	return ids
}
