package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/squadlite/squad-lite/internal/checkpoint"
	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/idgen"
)

type CheckpointStore struct {
	mu          sync.Mutex
	checkpoints []domain.Checkpoint
}

func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{}
}

func (s *CheckpointStore) CreateCheckpoint(ctx context.Context, agentID string, summary domain.CheckpointSummary, pointer domain.ResumePointer, tokensUsed int64) (domain.Checkpoint, error) {
	if summary.Goal == "" {
		return domain.Checkpoint{}, coorderrors.New(coorderrors.KindValidation, "summary.goal is required")
	}
	if pointer.NextAction == "" || pointer.Phase == "" {
		return domain.Checkpoint{}, coorderrors.New(coorderrors.KindValidation, "resumePointer.nextAction and phase are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := domain.Checkpoint{
		CheckpointID:  idgen.New(),
		AgentID:       agentID,
		Summary:       summary,
		ResumePointer: pointer,
		TokensUsed:    tokensUsed,
		CreatedAt:     time.Now().UTC(),
	}
	s.checkpoints = append(s.checkpoints, cp)
	return cp, nil
}

func (s *CheckpointStore) GetLatestCheckpoint(ctx context.Context, agentID string) (domain.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []domain.Checkpoint
	for _, cp := range s.checkpoints {
		if cp.AgentID == agentID {
			matches = append(matches, cp)
		}
	}
	if len(matches) == 0 {
		return domain.Checkpoint{}, false, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].CheckpointID > matches[j].CheckpointID
	})
	return matches[0], true, nil
}

func (s *CheckpointStore) BuildResumeContext(ctx context.Context, agentID string) (string, error) {
	cp, ok, err := s.GetLatestCheckpoint(ctx, agentID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return checkpoint.RenderResumeContext(cp), nil
}
