package api

import (
	"context"
	"net/http"

	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/domain"
	"github.com/squadlite/squad-lite/internal/eventbus"
)

func (s *Server) handleSandboxes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	records, err := s.Sandboxes.ListAll(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSandboxItem(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/sandboxes/")
	if len(segments) == 0 {
		writeStoreError(w, coorderrors.New(coorderrors.KindNotFound, "sandbox id required"))
		return
	}
	sandboxID := segments[0]

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			records, err := s.Sandboxes.ListBySandbox(r.Context(), sandboxID)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, records)
		case http.MethodDelete:
			s.killSandbox(w, r.Context(), sandboxID)
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch segments[1] {
	case "pause":
		s.setSandboxSuspension(w, r, sandboxID, true)
	case "resume":
		s.setSandboxSuspension(w, r, sandboxID, false)
	default:
		writeStoreError(w, coorderrors.New(coorderrors.KindNotFound, "unknown sandbox action"))
	}
}

// handleSandbox is DELETE /api/sandbox: kill the one shared sandbox
// without naming it by id.
func (s *Server) handleSandbox(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	sandboxID, ok := s.Orchestrator.SandboxID()
	if !ok {
		writeStoreError(w, coorderrors.New(coorderrors.KindSandboxNotFound, "no sandbox created"))
		return
	}
	s.killSandbox(w, r.Context(), sandboxID)
}

func (s *Server) killSandbox(w http.ResponseWriter, ctx context.Context, sandboxID string) {
	if err := s.Orchestrator.KillSandbox(ctx); err != nil {
		writeStoreError(w, err)
		return
	}
	if err := s.Sandboxes.DeleteBySandbox(ctx, sandboxID); err != nil {
		writeStoreError(w, err)
		return
	}
	if s.Events != nil {
		s.Events.Publish(eventbus.EventSandboxEvent, map[string]any{"sandboxId": sandboxID, "status": "killed"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sandboxId": sandboxID, "status": "killed"})
}

func (s *Server) setSandboxSuspension(w http.ResponseWriter, r *http.Request, sandboxID string, pause bool) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	ctx := r.Context()
	var opErr error
	status := domain.SandboxRecordActive
	if pause {
		opErr = s.Orchestrator.Pause(ctx)
		status = domain.SandboxRecordPaused
	} else {
		opErr = s.Orchestrator.Resume(ctx)
	}
	if opErr != nil {
		writeStoreError(w, opErr)
		return
	}

	for _, agentID := range s.Orchestrator.AgentIDs() {
		if _, err := s.Sandboxes.SetStatus(ctx, sandboxID, agentID, status); err != nil {
			writeStoreError(w, err)
			return
		}
	}
	if s.Events != nil {
		s.Events.Publish(eventbus.EventSandboxEvent, map[string]any{"sandboxId": sandboxID, "status": status})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sandboxId": sandboxID, "status": status})
}

func (s *Server) handleSandboxStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sandboxID, ready := s.Orchestrator.SandboxID()
	writeJSON(w, http.StatusOK, map[string]any{
		"sandboxId":  sandboxID,
		"isReady":    ready && s.Orchestrator.IsReady(),
		"agentCount": s.Orchestrator.AgentCount(),
		"agents":     s.Orchestrator.AgentIDs(),
	})
}
