package checkpoint_test

import (
	"context"
	"strings"
	"testing"

	"github.com/squadlite/squad-lite/internal/checkpoint"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/storetest"
)

func TestRenderResumeContextIncludesAllSections(t *testing.T) {
	cp := domain.Checkpoint{
		Summary: domain.CheckpointSummary{
			Goal:      "ship the feature",
			Completed: []string{"wrote tests"},
			Pending:   []string{"write docs"},
			Decisions: []string{"used library X"},
		},
		ResumePointer: domain.ResumePointer{
			NextAction:     "update the changelog",
			Phase:          "finishing",
			CurrentContext: "on the release branch",
		},
	}
	rendered := checkpoint.RenderResumeContext(cp)

	for _, want := range []string{
		"Goal: ship the feature",
		"wrote tests",
		"write docs",
		"used library X",
		"Next action: update the changelog",
		"Phase: finishing",
		"Context: on the release branch",
	} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("rendered context missing %q:\n%s", want, rendered)
		}
	}
}

func TestRenderResumeContextOmitsEmptyCurrentContext(t *testing.T) {
	cp := domain.Checkpoint{
		Summary:       domain.CheckpointSummary{Goal: "g"},
		ResumePointer: domain.ResumePointer{NextAction: "a", Phase: "p"},
	}
	rendered := checkpoint.RenderResumeContext(cp)
	if strings.Contains(rendered, "Context:") {
		t.Fatalf("expected no Context line when CurrentContext is empty:\n%s", rendered)
	}
}

func TestCreateCheckpointRequiresGoal(t *testing.T) {
	store := storetest.NewCheckpointStore()
	_, err := store.CreateCheckpoint(context.Background(), "agent-1",
		domain.CheckpointSummary{}, domain.ResumePointer{NextAction: "a", Phase: "p"}, 0)
	if err == nil {
		t.Fatalf("expected error for missing goal")
	}
}

func TestCreateCheckpointRequiresNextActionAndPhase(t *testing.T) {
	store := storetest.NewCheckpointStore()
	_, err := store.CreateCheckpoint(context.Background(), "agent-1",
		domain.CheckpointSummary{Goal: "g"}, domain.ResumePointer{}, 0)
	if err == nil {
		t.Fatalf("expected error for missing resume pointer fields")
	}
}

func TestGetLatestCheckpointOrdersByCreatedAtThenID(t *testing.T) {
	store := storetest.NewCheckpointStore()
	ctx := context.Background()

	first, err := store.CreateCheckpoint(ctx, "agent-1",
		domain.CheckpointSummary{Goal: "g1"}, domain.ResumePointer{NextAction: "a1", Phase: "p1"}, 10)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := store.CreateCheckpoint(ctx, "agent-1",
		domain.CheckpointSummary{Goal: "g2"}, domain.ResumePointer{NextAction: "a2", Phase: "p2"}, 20)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	latest, ok, err := store.GetLatestCheckpoint(ctx, "agent-1")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if !ok {
		t.Fatalf("expected a checkpoint")
	}
	if latest.CheckpointID != second.CheckpointID {
		t.Fatalf("expected the most recently created checkpoint (%s), got %s", second.CheckpointID, latest.CheckpointID)
	}
	if first.CheckpointID == second.CheckpointID {
		t.Fatalf("expected distinct checkpoint ids")
	}
}

func TestGetLatestCheckpointNoneForUnknownAgent(t *testing.T) {
	store := storetest.NewCheckpointStore()
	_, ok, err := store.GetLatestCheckpoint(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if ok {
		t.Fatalf("expected no checkpoint for unknown agent")
	}
}

func TestBuildResumeContextRoundTrip(t *testing.T) {
	store := storetest.NewCheckpointStore()
	ctx := context.Background()

	cp, err := store.CreateCheckpoint(ctx, "agent-1",
		domain.CheckpointSummary{Goal: "ship it", Pending: []string{"tests"}},
		domain.ResumePointer{NextAction: "run tests", Phase: "qa"}, 42)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rendered, err := store.BuildResumeContext(ctx, "agent-1")
	if err != nil {
		t.Fatalf("build resume context: %v", err)
	}
	if rendered != checkpoint.RenderResumeContext(cp) {
		t.Fatalf("resume context did not round-trip the stored checkpoint")
	}
}

func TestBuildResumeContextEmptyForNoCheckpoints(t *testing.T) {
	store := storetest.NewCheckpointStore()
	rendered, err := store.BuildResumeContext(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("build resume context: %v", err)
	}
	if rendered != "" {
		t.Fatalf("expected empty resume context, got %q", rendered)
	}
}
