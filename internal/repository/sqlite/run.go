package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/execbox/internal/apperror"
	"github.com/sakif/execbox/internal/model"
	"github.com/sakif/execbox/internal/repository"
)

// Compile-time check that *DB implements repository.RunRepository.
var _ repository.RunRepository = (*DB)(nil)

// Create inserts a run record. The ID and CreatedAt are generated here and
// written back to the caller's struct; xid IDs are URL-safe and sort by
// creation time.
func (db *DB) Create(ctx context.Context, run *model.Run) error {
	run.ID = xid.New().String()
	run.CreatedAt = time.Now()

	// An anonymous run stores NULL, not the empty string — user_id references
	// users(id) and foreign keys are enforced.
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, user_id, code, language, output, tier, error_kind, exit_code, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		nullableString(run.UserID),
		run.Code,
		run.Language,
		run.Output,
		run.Tier,
		run.ErrorKind,
		run.ExitCode,
		run.DurationMS,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating run: %w", err)
	}

	return nil
}

// GetByID retrieves a single run by its ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Run, error) {
	var (
		run    model.Run
		userID sql.NullString
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, code, language, output, tier, error_kind, exit_code, duration_ms, created_at
		 FROM runs
		 WHERE id = ?`,
		id,
	).Scan(
		&run.ID,
		&userID,
		&run.Code,
		&run.Language,
		&run.Output,
		&run.Tier,
		&run.ErrorKind,
		&run.ExitCode,
		&run.DurationMS,
		&run.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("run", id)
		}
		return nil, fmt.Errorf("sqlite: getting run %s: %w", id, err)
	}

	run.UserID = userID.String
	return &run, nil
}

// List retrieves runs newest-first with pagination, optionally filtered to
// one user.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, user_id, code, language, output, tier, error_kind, exit_code, duration_ms, created_at
	          FROM runs`
	args := []any{}
	if opts.UserID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, opts.UserID)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]model.Run, 0, limit)
	for rows.Next() {
		var (
			run    model.Run
			userID sql.NullString
		)
		if err := rows.Scan(
			&run.ID, &userID, &run.Code, &run.Language, &run.Output,
			&run.Tier, &run.ErrorKind, &run.ExitCode, &run.DurationMS,
			&run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning run row: %w", err)
		}
		run.UserID = userID.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating runs: %w", err)
	}

	return runs, nil
}

// Delete removes a run by ID. RowsAffected distinguishes "deleted" from
// "never existed".
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting run %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if affected == 0 {
		return apperror.NotFound("run", id)
	}

	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
