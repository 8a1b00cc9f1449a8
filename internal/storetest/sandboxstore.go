package storetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
)

type sandboxKey struct {
	sandboxID string
	agentID   string
}

type SandboxStore struct {
	mu      sync.Mutex
	records map[sandboxKey]domain.SandboxRecord
}

func NewSandboxStore() *SandboxStore {
	return &SandboxStore{records: make(map[sandboxKey]domain.SandboxRecord)}
}

func (s *SandboxStore) Attach(ctx context.Context, sandboxID, agentID string, metadata domain.SandboxMetadata, resources domain.SandboxResources) (domain.SandboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sandboxKey{sandboxID, agentID}
	if existing, ok := s.records[key]; ok {
		return existing, nil
	}
	now := time.Now().UTC()
	record := domain.SandboxRecord{
		SandboxID: sandboxID,
		AgentID:   agentID,
		Status:    domain.SandboxRecordActive,
		Metadata:  metadata,
		Lifecycle: domain.SandboxLifecycle{CreatedAt: now, LastHeartbeat: now},
		Resources: resources,
	}
	s.records[key] = record
	return record, nil
}

func (s *SandboxStore) SetStatus(ctx context.Context, sandboxID, agentID string, status domain.SandboxRecordStatus) (domain.SandboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sandboxKey{sandboxID, agentID}
	record, ok := s.records[key]
	if !ok {
		return domain.SandboxRecord{}, coorderrors.New(coorderrors.KindSandboxNotFound, fmt.Sprintf("sandbox record %s/%s not found", sandboxID, agentID))
	}
	now := time.Now().UTC()
	record.Status = status
	switch status {
	case domain.SandboxRecordPaused:
		record.Lifecycle.PausedAt = &now
	case domain.SandboxRecordActive:
		record.Lifecycle.ResumedAt = &now
	case domain.SandboxRecordKilled:
		record.Lifecycle.KilledAt = &now
	}
	s.records[key] = record
	return record, nil
}

func (s *SandboxStore) Heartbeat(ctx context.Context, sandboxID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sandboxKey{sandboxID, agentID}
	record, ok := s.records[key]
	if !ok {
		return coorderrors.New(coorderrors.KindSandboxNotFound, fmt.Sprintf("sandbox record %s/%s not found", sandboxID, agentID))
	}
	record.Lifecycle.LastHeartbeat = time.Now().UTC()
	s.records[key] = record
	return nil
}

func (s *SandboxStore) Get(ctx context.Context, sandboxID, agentID string) (domain.SandboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sandboxKey{sandboxID, agentID}]
	if !ok {
		return domain.SandboxRecord{}, coorderrors.New(coorderrors.KindSandboxNotFound, fmt.Sprintf("sandbox record %s/%s not found", sandboxID, agentID))
	}
	return record, nil
}

func (s *SandboxStore) ListBySandbox(ctx context.Context, sandboxID string) ([]domain.SandboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SandboxRecord
	for k, r := range s.records {
		if k.sandboxID == sandboxID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *SandboxStore) ListAll(ctx context.Context) ([]domain.SandboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.SandboxRecord
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

func (s *SandboxStore) DeleteBySandbox(ctx context.Context, sandboxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.records {
		if k.sandboxID == sandboxID {
			delete(s.records, k)
		}
	}
	return nil
}
