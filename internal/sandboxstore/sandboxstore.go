// Package sandboxstore persists the sandboxes collection of spec.md
// §3: one record per (sandboxId, agentId) attachment, tracking the
// status and lifecycle timestamps the REST surface reports in
// GET /api/sandboxes and GET /api/sandbox/status. The in-memory
// sandbox.Orchestrator is the source of truth for process state;
// this store is the durable projection other API calls and restarts
// read back.
package sandboxstore

import (
	"context"

	"github.com/squadlite/squad-lite/internal/domain"
)

type Store interface {
	Attach(ctx context.Context, sandboxID, agentID string, metadata domain.SandboxMetadata, resources domain.SandboxResources) (domain.SandboxRecord, error)
	SetStatus(ctx context.Context, sandboxID, agentID string, status domain.SandboxRecordStatus) (domain.SandboxRecord, error)
	Heartbeat(ctx context.Context, sandboxID, agentID string) error
	Get(ctx context.Context, sandboxID, agentID string) (domain.SandboxRecord, error)
	ListBySandbox(ctx context.Context, sandboxID string) ([]domain.SandboxRecord, error)
	ListAll(ctx context.Context) ([]domain.SandboxRecord, error)
	DeleteBySandbox(ctx context.Context, sandboxID string) error
}
