package service_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/execbox/internal/apperror"
	"github.com/sakif/execbox/internal/model"
	"github.com/sakif/execbox/internal/repository"
	"github.com/sakif/execbox/internal/sandbox"
	"github.com/sakif/execbox/internal/service"
)

// fakeSandbox records the requests it receives and returns a fixed outcome.
type fakeSandbox struct {
	lastReq sandbox.Request
	lastPol sandbox.Policy
	outcome *sandbox.Outcome
}

func (f *fakeSandbox) Run(ctx context.Context, req sandbox.Request, pol sandbox.Policy) *sandbox.Outcome {
	f.lastReq = req
	f.lastPol = pol
	return f.outcome
}

func (f *fakeSandbox) TierStatus(ctx context.Context) map[sandbox.Tier]sandbox.Status {
	return map[sandbox.Tier]sandbox.Status{
		sandbox.TierLocal: {Available: true, Detail: "available"},
	}
}

func (f *fakeSandbox) Tiers() []sandbox.Tier {
	return []sandbox.Tier{sandbox.TierLocal}
}

func (f *fakeSandbox) Refresh(ctx context.Context) {}

// fakeRunRepo is an in-memory RunRepository.
type fakeRunRepo struct {
	runs      map[string]model.Run
	nextID    int
	createErr error
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]model.Run)}
}

func (r *fakeRunRepo) Create(ctx context.Context, run *model.Run) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	run.ID = fmt.Sprintf("run-%d", r.nextID)
	run.CreatedAt = time.Now()
	r.runs[run.ID] = *run
	return nil
}

func (r *fakeRunRepo) GetByID(ctx context.Context, id string) (*model.Run, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, apperror.NotFound("run", id)
	}
	return &run, nil
}

func (r *fakeRunRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	var out []model.Run
	for _, run := range r.runs {
		if opts.UserID == "" || run.UserID == opts.UserID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *fakeRunRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.runs[id]; !ok {
		return apperror.NotFound("run", id)
	}
	delete(r.runs, id)
	return nil
}

func successOutcome() *sandbox.Outcome {
	return &sandbox.Outcome{
		Text:      "Docker sandbox:\nhello\n",
		Tier:      sandbox.TierDocker,
		ErrorKind: sandbox.ErrorKindNone,
		ExitCode:  0,
		Duration:  120 * time.Millisecond,
	}
}

func TestExecuteRecordsRun(t *testing.T) {
	sb := &fakeSandbox{outcome: successOutcome()}
	repo := newFakeRunRepo()
	svc := service.NewRunService(sb, repo, slog.New(slog.DiscardHandler))

	run, err := svc.Execute(context.Background(), "user1", `print("hi")`, "python", sandbox.Policy{})

	require.NoError(t, err)
	assert.Equal(t, "user1", run.UserID)
	assert.Equal(t, "docker", run.Tier)
	assert.Equal(t, "Docker sandbox:\nhello\n", run.Output)
	assert.Equal(t, int64(120), run.DurationMS)
	assert.Len(t, repo.runs, 1, "the run must be persisted")
}

func TestExecuteNormalizesLanguage(t *testing.T) {
	sb := &fakeSandbox{outcome: successOutcome()}
	svc := service.NewRunService(sb, newFakeRunRepo(), slog.New(slog.DiscardHandler))

	_, err := svc.Execute(context.Background(), "", "echo hi", "Bash", sandbox.Policy{})

	require.NoError(t, err)
	assert.Equal(t, sandbox.LanguageShell, sb.lastReq.Language)
}

func TestExecuteRejectsEmptyCode(t *testing.T) {
	sb := &fakeSandbox{outcome: successOutcome()}
	svc := service.NewRunService(sb, newFakeRunRepo(), slog.New(slog.DiscardHandler))

	_, err := svc.Execute(context.Background(), "", "   \n", "python", sandbox.Policy{})

	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestExecuteRejectsOversizedCode(t *testing.T) {
	sb := &fakeSandbox{outcome: successOutcome()}
	svc := service.NewRunService(sb, newFakeRunRepo(), slog.New(slog.DiscardHandler))

	_, err := svc.Execute(context.Background(), "", strings.Repeat("x", service.MaxCodeLength+1), "python", sandbox.Policy{})

	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestExecutePassesPolicyThrough(t *testing.T) {
	sb := &fakeSandbox{outcome: successOutcome()}
	svc := service.NewRunService(sb, newFakeRunRepo(), slog.New(slog.DiscardHandler))

	pol := sandbox.Policy{PreferLocal: true, AllowInstalls: true, AllowExec: true}
	_, err := svc.Execute(context.Background(), "", "print(1)", "python", pol)

	require.NoError(t, err)
	assert.Equal(t, pol, sb.lastPol)
}

func TestExecuteReturnsOutcomeWhenPersistFails(t *testing.T) {
	sb := &fakeSandbox{outcome: successOutcome()}
	repo := newFakeRunRepo()
	repo.createErr = errors.New("disk full")
	svc := service.NewRunService(sb, repo, slog.New(slog.DiscardHandler))

	run, err := svc.Execute(context.Background(), "", "print(1)", "python", sandbox.Policy{})

	// The code already ran; a history failure must not eat the result.
	require.NoError(t, err)
	assert.Equal(t, "Docker sandbox:\nhello\n", run.Output)
}

func TestGetByIDEnforcesOwnership(t *testing.T) {
	sb := &fakeSandbox{outcome: successOutcome()}
	repo := newFakeRunRepo()
	svc := service.NewRunService(sb, repo, slog.New(slog.DiscardHandler))

	owned, err := svc.Execute(context.Background(), "owner", "print(1)", "python", sandbox.Policy{})
	require.NoError(t, err)

	_, err = svc.GetByID(context.Background(), "someone-else", owned.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	got, err := svc.GetByID(context.Background(), "owner", owned.ID)
	require.NoError(t, err)
	assert.Equal(t, owned.ID, got.ID)
}

func TestDeleteEnforcesOwnership(t *testing.T) {
	sb := &fakeSandbox{outcome: successOutcome()}
	repo := newFakeRunRepo()
	svc := service.NewRunService(sb, repo, slog.New(slog.DiscardHandler))

	owned, err := svc.Execute(context.Background(), "owner", "print(1)", "python", sandbox.Policy{})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), "someone-else", owned.ID)
	assert.True(t, errors.Is(err, apperror.ErrForbidden))

	require.NoError(t, svc.Delete(context.Background(), "owner", owned.ID))
	_, err = svc.GetByID(context.Background(), "owner", owned.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
