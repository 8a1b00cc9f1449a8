package sandbox

import "context"

// OutputStream identifies which stream a chunk of process output came
// from, matching the sandbox orchestrator's output handler of spec.md
// §4.5.
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// OutputFunc receives output chunk-wise as a process produces it.
type OutputFunc func(stream OutputStream, data string)

// ExecResult is the result of a one-shot command run through
// Provider.Execute.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Error    bool
}

// Process is a handle to a long-running process started inside a
// sandbox (an agent runtime invocation). It is returned by
// Provider.StartProcess and used by the orchestrator to wait for
// completion or to kill it.
type Process interface {
	Wait(ctx context.Context) (exitCode int, err error)
	Kill() error
}

// Provider is the opaque remote-sandbox interface the orchestrator
// drives. LocalProvider is the only implementation in this module: it
// implements the contract with real local OS processes and is what
// cmd/controlplaned wires. No client for a remote sandbox service is
// included.
type Provider interface {
	// CreateSandbox provisions a new sandbox and returns its id.
	CreateSandbox(ctx context.Context) (string, error)

	// UploadRuntimeBundle installs the agent-runtime script/binary at a
	// fixed path inside the sandbox, idempotently.
	UploadRuntimeBundle(ctx context.Context, sandboxID string) error

	// StartProcess launches a long-running command inside the sandbox,
	// streaming output chunk-wise through out. The task body must
	// travel in env, never in args (spec.md §7).
	StartProcess(ctx context.Context, sandboxID string, args []string, env map[string]string, out OutputFunc) (Process, error)

	// Execute runs a one-shot command and waits for completion.
	Execute(ctx context.Context, sandboxID string, command []string, env map[string]string, timeoutMs int, out OutputFunc) (ExecResult, error)

	// KillProcess best-effort terminates a process inside the sandbox
	// identified by a command-line pattern (the agent id).
	KillProcess(ctx context.Context, sandboxID, agentID string) error

	Pause(ctx context.Context, sandboxID string) error
	Resume(ctx context.Context, sandboxID string) error
	Destroy(ctx context.Context, sandboxID string) error
}
