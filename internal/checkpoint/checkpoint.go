// Package checkpoint implements the append-only checkpoint log of
// spec.md §4.2: every agent's logical progress, sufficient to render a
// resume prompt after a restart.
package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"github.com/squadlite/squad-lite/internal/domain"
)

type Store interface {
	CreateCheckpoint(ctx context.Context, agentID string, summary domain.CheckpointSummary, pointer domain.ResumePointer, tokensUsed int64) (domain.Checkpoint, error)
	GetLatestCheckpoint(ctx context.Context, agentID string) (domain.Checkpoint, bool, error)
	BuildResumeContext(ctx context.Context, agentID string) (string, error)
}

// RenderResumeContext renders the human-readable resume text described
// in spec.md §4.2. It is a pure function of a checkpoint so storetest's
// fake and the MongoDB-backed store can share one rendering, and so it
// is directly testable against spec.md §8's round-trip property.
func RenderResumeContext(cp domain.Checkpoint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", cp.Summary.Goal)
	b.WriteString("Completed:\n")
	for _, item := range cp.Summary.Completed {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	b.WriteString("Pending:\n")
	for _, item := range cp.Summary.Pending {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	b.WriteString("Decisions:\n")
	for _, item := range cp.Summary.Decisions {
		fmt.Fprintf(&b, "  - %s\n", item)
	}
	fmt.Fprintf(&b, "Next action: %s\n", cp.ResumePointer.NextAction)
	fmt.Fprintf(&b, "Phase: %s\n", cp.ResumePointer.Phase)
	if cp.ResumePointer.CurrentContext != "" {
		fmt.Fprintf(&b, "Context: %s\n", cp.ResumePointer.CurrentContext)
	}
	return b.String()
}
