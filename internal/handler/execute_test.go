package handler_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/execbox/internal/apperror"
	"github.com/sakif/execbox/internal/handler"
	"github.com/sakif/execbox/internal/model"
	"github.com/sakif/execbox/internal/sandbox"
)

type fakeExecuteService struct {
	lastCode     string
	lastLanguage string
	lastPolicy   sandbox.Policy
	run          *model.Run
	err          error
}

func (f *fakeExecuteService) Execute(ctx context.Context, userID, code, language string, pol sandbox.Policy) (*model.Run, error) {
	f.lastCode = code
	f.lastLanguage = language
	f.lastPolicy = pol
	if f.err != nil {
		return nil, f.err
	}
	return f.run, nil
}

func TestHandleExecuteSuccess(t *testing.T) {
	svc := &fakeExecuteService{
		run: &model.Run{
			ID:       "run1",
			Output:   "Docker sandbox:\n4\n",
			Tier:     "docker",
			Language: "python",
		},
	}
	h := handler.NewExecuteHandler(svc, sandbox.Policy{}, slog.New(slog.DiscardHandler))

	body := `{"code": "print(2+2)", "language": "python", "allowInstalls": true, "allowExec": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.HandleExecute(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"Docker sandbox:\n4\n"`)

	assert.Equal(t, "print(2+2)", svc.lastCode)
	assert.Equal(t, sandbox.Policy{AllowInstalls: true, AllowExec: true}, svc.lastPolicy)
}

func TestHandleExecuteInvalidBody(t *testing.T) {
	h := handler.NewExecuteHandler(&fakeExecuteService{}, sandbox.Policy{}, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.HandleExecute(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestHandleExecuteValidationError(t *testing.T) {
	svc := &fakeExecuteService{err: apperror.ValidationFailed("code", "code is required")}
	h := handler.NewExecuteHandler(svc, sandbox.Policy{}, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/execute", strings.NewReader(`{"code": ""}`))
	rec := httptest.NewRecorder()

	h.HandleExecute(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "code is required")
}

func TestHandleExecutePreferLocalFlag(t *testing.T) {
	svc := &fakeExecuteService{run: &model.Run{ID: "run2"}}
	h := handler.NewExecuteHandler(svc, sandbox.Policy{}, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/execute",
		strings.NewReader(`{"code": "print(1)", "preferLocal": true}`))
	rec := httptest.NewRecorder()

	h.HandleExecute(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastPolicy.PreferLocal)
	assert.False(t, svc.lastPolicy.AllowInstalls, "install permission must not default on")
}

func TestHandleExecuteServerPolicyBaseline(t *testing.T) {
	svc := &fakeExecuteService{run: &model.Run{ID: "run3"}}
	h := handler.NewExecuteHandler(svc, sandbox.Policy{PreferLocal: true}, slog.New(slog.DiscardHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/execute",
		strings.NewReader(`{"code": "print(1)"}`))
	rec := httptest.NewRecorder()

	h.HandleExecute(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastPolicy.PreferLocal, "server baseline applies even when the request omits the flag")
}
