package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/execbox/internal/auth"
	"github.com/sakif/execbox/internal/model"
	"github.com/sakif/execbox/internal/sandbox"
)

// ExecuteService is the slice of RunService the execute handler needs.
// An interface so handler tests can inject a fake.
type ExecuteService interface {
	Execute(ctx context.Context, userID, code, language string, pol sandbox.Policy) (*model.Run, error)
}

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	runs     ExecuteService
	defaults sandbox.Policy
	logger   *slog.Logger
}

// NewExecuteHandler creates the handler. defaults is the server-level policy
// baseline (e.g. SANDBOX_PREFER_LOCAL); request flags can only add to it.
func NewExecuteHandler(runs ExecuteService, defaults sandbox.Policy, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{runs: runs, defaults: defaults, logger: logger}
}

// executeRequest is the POST /api/execute body. The policy flags default to
// the most restrictive setting.
type executeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	// PreferLocal skips the sandbox tiers entirely.
	PreferLocal bool `json:"preferLocal"`
	// AllowInstalls and AllowExec together permit one automatic dependency
	// install and re-run when the output shows a missing module.
	AllowInstalls bool `json:"allowInstalls"`
	AllowExec     bool `json:"allowExec"`
}

// HandleExecute processes an incoming code execution request.
//
// HTTP: POST /api/execute
// Auth: optional — authenticated runs land in the user's history.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "invalid request body",
		})
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())

	pol := sandbox.Policy{
		PreferLocal:   req.PreferLocal || h.defaults.PreferLocal,
		AllowInstalls: req.AllowInstalls || h.defaults.AllowInstalls,
		AllowExec:     req.AllowExec || h.defaults.AllowExec,
	}

	run, err := h.runs.Execute(r.Context(), userID, req.Code, req.Language, pol)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}
