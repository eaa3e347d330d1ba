package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/execbox/internal/auth"
	"github.com/sakif/execbox/internal/model"
)

// RunHistory is the slice of RunService the history handlers need.
type RunHistory interface {
	GetByID(ctx context.Context, userID, id string) (*model.Run, error)
	List(ctx context.Context, userID string, limit, offset int) ([]model.Run, error)
	Delete(ctx context.Context, userID, id string) error
}

// RunHandler serves the execution history endpoints.
type RunHandler struct {
	runs   RunHistory
	logger *slog.Logger
}

func NewRunHandler(runs RunHistory, logger *slog.Logger) *RunHandler {
	return &RunHandler{runs: runs, logger: logger}
}

// HandleList returns the caller's run history, newest first.
//
// HTTP: GET /api/runs?limit=20&offset=0
// Auth: required — history is always scoped to the authenticated user.
func (h *RunHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	runs, err := h.runs.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// HandleGetByID returns one run.
//
// HTTP: GET /api/runs/{id}
func (h *RunHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	run, err := h.runs.GetByID(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// HandleDelete removes a run from the caller's history.
//
// HTTP: DELETE /api/runs/{id}
func (h *RunHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := h.runs.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
