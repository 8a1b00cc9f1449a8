// Package api implements the control plane's REST surface and
// WebSocket event feed of spec.md §6: lifecycle for agents, sandboxes,
// tasks, and messages, plus a health check.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/squadlite/squad-lite/internal/agentregistry"
	"github.com/squadlite/squad-lite/internal/coorderrors"
	"github.com/squadlite/squad-lite/internal/eventbus"
	"github.com/squadlite/squad-lite/internal/messagebus"
	"github.com/squadlite/squad-lite/internal/sandbox"
	"github.com/squadlite/squad-lite/internal/sandboxstore"
	"github.com/squadlite/squad-lite/internal/taskstore"
)

const version = "0.1.0"

var errEventsUnavailable = coorderrors.New(coorderrors.KindStorageUnavailable, "event bus not configured")

// Server wires the storage/orchestration layer to HTTP handlers. All
// fields are required except RuntimeEnv, which is only consulted when
// launching an agent process directly (POST /api/agents/:id/task), and
// Events: with a nil Events, handlers skip publishing and the WebSocket
// endpoint answers with a storage-unavailable error.
type Server struct {
	Agents       agentregistry.Registry
	Tasks        taskstore.Store
	Messages     messagebus.Bus
	Sandboxes    sandboxstore.Store
	Orchestrator *sandbox.Orchestrator
	Events       *eventbus.Bus
	RuntimeEnv   map[string]string
	StartedAt    time.Time
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/agents/stale", s.handleStaleAgents)
	mux.HandleFunc("/api/agents/", s.handleAgentItem)

	mux.HandleFunc("/api/sandbox", s.handleSandbox)
	mux.HandleFunc("/api/sandbox/status", s.handleSandboxStatus)
	mux.HandleFunc("/api/sandboxes", s.handleSandboxes)
	mux.HandleFunc("/api/sandboxes/", s.handleSandboxItem)

	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTaskItem)

	mux.HandleFunc("/api/messages", s.handleMessages)

	mux.HandleFunc("/ws", s.handleWS)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"version":   version,
	})
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeStoreError translates a coorderrors.Error into the
// {error, message, statusCode} body of spec.md §6; anything else
// surfaces as an opaque internal error.
func writeStoreError(w http.ResponseWriter, err error) {
	status := coorderrors.StatusCode(err)
	writeJSON(w, status, map[string]any{
		"error":      coorderrors.Code(err),
		"message":    err.Error(),
		"statusCode": status,
	})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
		"error":      "method_not_allowed",
		"message":    "method not allowed",
		"statusCode": http.StatusMethodNotAllowed,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":      string(coorderrors.KindValidation),
		"message":    message,
		"statusCode": http.StatusBadRequest,
	})
}

func parseLimit(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// pathSegments splits a path below the given prefix into non-empty
// segments, mirroring the teacher's handleTaskItem/handleStreams style
// of manual routing instead of a pattern-matching router.
func pathSegments(path, prefix string) []string {
	trimmed := strings.TrimPrefix(path, prefix)
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
