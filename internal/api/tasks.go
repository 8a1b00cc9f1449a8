package api

import (
	"net/http"

	"github.com/squadlite/squad-lite/internal/coorderrors"
)

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	tasks, err := s.Tasks.ListTasks(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	segments := pathSegments(r.URL.Path, "/api/tasks/")
	if len(segments) != 1 {
		writeStoreError(w, coorderrors.New(coorderrors.KindNotFound, "task id required"))
		return
	}
	task, err := s.Tasks.GetTask(r.Context(), segments[0])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
