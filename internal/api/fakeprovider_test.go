package api

import (
	"context"

	"github.com/squadlite/squad-lite/internal/sandbox"
)

// fakeProcess completes immediately with the exit code its fakeProvider
// was configured with; fakeProvider.StartProcess first emits the
// configured stdout (when non-empty), so runAgentAsync's ExtractResult
// path has something to chew on without a real sandbox.
type fakeProcess struct {
	exitCode int
}

func (p *fakeProcess) Wait(ctx context.Context) (int, error) { return p.exitCode, nil }
func (p *fakeProcess) Kill() error                            { return nil }

// fakeProvider is an in-memory sandbox.Provider standing in for a real
// remote sandbox in HTTP handler tests.
type fakeProvider struct {
	stdout   string
	exitCode int
}

func (p *fakeProvider) CreateSandbox(ctx context.Context) (string, error) { return "sandbox-1", nil }

func (p *fakeProvider) UploadRuntimeBundle(ctx context.Context, sandboxID string) error { return nil }

func (p *fakeProvider) StartProcess(ctx context.Context, sandboxID string, args []string, env map[string]string, out sandbox.OutputFunc) (sandbox.Process, error) {
	if p.stdout != "" {
		out(sandbox.StreamStdout, p.stdout)
	}
	return &fakeProcess{exitCode: p.exitCode}, nil
}

func (p *fakeProvider) Execute(ctx context.Context, sandboxID string, command []string, env map[string]string, timeoutMs int, out sandbox.OutputFunc) (sandbox.ExecResult, error) {
	return sandbox.ExecResult{}, nil
}

func (p *fakeProvider) KillProcess(ctx context.Context, sandboxID, agentID string) error { return nil }
func (p *fakeProvider) Pause(ctx context.Context, sandboxID string) error                { return nil }
func (p *fakeProvider) Resume(ctx context.Context, sandboxID string) error               { return nil }
func (p *fakeProvider) Destroy(ctx context.Context, sandboxID string) error              { return nil }
