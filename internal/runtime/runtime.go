// Package runtime implements the two agent-runtime modes of spec.md
// §4.6: the director orchestration loop and the specialist execution
// loop. Both share the same scaffolding the teacher's
// internal/engine.Agent used — connect, resolve identity, mark
// working, run mode-specific logic, mark terminal, disconnect — bent
// to this domain's decompose/spawn/wait/aggregate/summarize shape.
package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/squadlite/squad-lite/internal/agentregistry"
	"github.com/squadlite/squad-lite/internal/checkpoint"
	"github.com/squadlite/squad-lite/internal/llm"
	"github.com/squadlite/squad-lite/internal/messagebus"
	"github.com/squadlite/squad-lite/internal/taskstore"
)

const (
	DirectorOutputStart    = "=== DIRECTOR OUTPUT ==="
	SpecialistOutputStart  = "=== SPECIALIST OUTPUT ==="
	OutputEnd              = "=== END OUTPUT ==="
	defaultDecomposeTokens = 1024
)

type Runner struct {
	Agents      agentregistry.Registry
	Tasks       taskstore.Store
	Bus         messagebus.Bus
	Checkpoints checkpoint.Store
	LLM         llm.Provider
	Model       string
	MaxTurns    int
	WaitTimeout time.Duration

	// Print emits a line of runtime stdout; overridable in tests.
	// The production binary sets it to fmt.Println.
	Print func(string)
}

func (r *Runner) print(line string) {
	if r.Print != nil {
		r.Print(line)
		return
	}
	fmt.Println(line)
}

// addTokens is the single point every director and specialist LLM call
// routes through, so it also carries the heartbeat requirement of
// spec.md §4.4: lastHeartbeat advances after every LLM call, not just
// on status transitions.
func (r *Runner) addTokens(ctx context.Context, agentID string, in, out int64) {
	_, _ = r.Agents.AddTokens(ctx, agentID, in, out)
	_ = r.Agents.Heartbeat(ctx, agentID)
}

// taskIDPtr turns the empty string (no known taskId, e.g. a director
// launched without one) into nil so UpdateStatus leaves taskId unset
// rather than storing an empty string.
func taskIDPtr(taskID string) *string {
	if taskID == "" {
		return nil
	}
	return &taskID
}

func (r *Runner) toolDeps() llm.Deps {
	return llm.Deps{Bus: r.Bus, Checkpoints: r.Checkpoints, Tasks: r.Tasks, Agents: r.Agents}
}

type subtask struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Specialization string `json:"specialization"`
}

type decomposition struct {
	Subtasks []subtask `json:"subtasks"`
}
