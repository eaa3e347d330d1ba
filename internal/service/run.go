// Package service contains the business logic layer.
//
// The layering follows the usual three-tier shape:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates, enforces rules, orchestrates
//	Repository (data)  → reads/writes the database
//
// Services accept interfaces (repository.RunRepository, Sandbox) rather than
// concrete types, so tests inject fakes and the wiring in server.go decides
// the real implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/execbox/internal/apperror"
	"github.com/sakif/execbox/internal/model"
	"github.com/sakif/execbox/internal/repository"
	"github.com/sakif/execbox/internal/sandbox"
)

const (
	// MaxCodeLength caps submitted code at ~100KB.
	MaxCodeLength    = 100000
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Sandbox is the slice of the execution chain the service needs. Satisfied
// by *sandbox.Chain in production and by fakes in tests.
type Sandbox interface {
	Run(ctx context.Context, req sandbox.Request, pol sandbox.Policy) *sandbox.Outcome
	TierStatus(ctx context.Context) map[sandbox.Tier]sandbox.Status
	Tiers() []sandbox.Tier
	Refresh(ctx context.Context)
}

// RunService executes code through the sandbox chain and records the result.
type RunService struct {
	chain  Sandbox
	runs   repository.RunRepository
	logger *slog.Logger
}

func NewRunService(chain Sandbox, runs repository.RunRepository, logger *slog.Logger) *RunService {
	return &RunService{
		chain:  chain,
		runs:   runs,
		logger: logger,
	}
}

// Execute validates the request, runs it through the chain, and persists a
// run record. userID may be empty for anonymous callers.
//
// A persistence failure does not discard the execution result: the code
// already ran, so the outcome is returned with the history write logged as
// an error.
func (s *RunService) Execute(ctx context.Context, userID, code, language string, pol sandbox.Policy) (*model.Run, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	if len(code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}

	req := sandbox.Request{
		Code:     code,
		Language: sandbox.ParseLanguage(language),
	}

	outcome := s.chain.Run(ctx, req, pol)

	run := &model.Run{
		UserID:     userID,
		Code:       code,
		Language:   string(req.Language),
		Output:     outcome.Text,
		Tier:       string(outcome.Tier),
		ErrorKind:  string(outcome.ErrorKind),
		ExitCode:   outcome.ExitCode,
		DurationMS: outcome.Duration.Milliseconds(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Error("failed to record run",
			slog.String("tier", run.Tier),
			slog.String("error", err.Error()),
		)
	}

	return run, nil
}

// GetByID retrieves one run. Owned runs are only visible to their owner;
// anonymous runs are visible to anyone who has the ID.
func (s *RunService) GetByID(ctx context.Context, userID, id string) (*model.Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "run ID is required")
	}

	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.UserID != "" && run.UserID != userID {
		return nil, apperror.Forbidden("runs are only visible to their owner")
	}

	return run, nil
}

// List returns the caller's run history, newest first.
func (s *RunService) List(ctx context.Context, userID string, limit, offset int) ([]model.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, err := s.runs.List(ctx, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
		UserID: userID,
	})
	if err != nil {
		s.logger.Error("failed to list runs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// Delete removes a run from the caller's history.
func (s *RunService) Delete(ctx context.Context, userID, id string) error {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if run.UserID != "" && run.UserID != userID {
		return apperror.Forbidden("runs are only visible to their owner")
	}

	if err := s.runs.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("deleting run: %w", err)
	}

	s.logger.Info("run deleted", slog.String("id", id))
	return nil
}

// TierStatus reports each tier's current availability.
func (s *RunService) TierStatus(ctx context.Context) map[sandbox.Tier]sandbox.Status {
	return s.chain.TierStatus(ctx)
}

// Tiers returns the chain order for display.
func (s *RunService) Tiers() []sandbox.Tier {
	return s.chain.Tiers()
}

// RefreshTiers re-probes availability immediately, bypassing the cache TTL.
func (s *RunService) RefreshTiers(ctx context.Context) {
	s.chain.Refresh(ctx)
}
