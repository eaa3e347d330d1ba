// Package repository defines the storage interfaces the service layer
// depends on. Concrete implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/sakif/execbox/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	// UserID filters runs to one user when non-empty.
	UserID string
}

// RunRepository persists execution history.
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts ListOptions) ([]model.Run, error)
	Delete(ctx context.Context, id string) error
}

// UserRepository persists user accounts keyed by GitHub identity.
type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}
