package sqlite_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/execbox/internal/apperror"
	"github.com/sakif/execbox/internal/model"
)

func TestUserUpsertInsertsNewUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{
		GitHubID:  4242,
		Login:     "alice",
		Email:     "alice@example.com",
		AvatarURL: "https://example.com/a.png",
	}
	require.NoError(t, db.Upsert(ctx, user))
	assert.NotEmpty(t, user.ID)

	got, err := db.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4242), got.GitHubID)
	assert.Equal(t, "alice", got.Login)
}

func TestUserUpsertKeepsInternalID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.User{GitHubID: 7, Login: "carol"}
	require.NoError(t, db.Upsert(ctx, first))

	// Same GitHub account logs in again with a changed profile.
	second := &model.User{GitHubID: 7, Login: "carol-renamed", Email: "new@example.com"}
	require.NoError(t, db.Upsert(ctx, second))

	assert.Equal(t, first.ID, second.ID, "upsert must keep the existing internal ID")

	got, err := db.GetUserByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol-renamed", got.Login)
	assert.Equal(t, "new@example.com", got.Email)
}

func TestUserGetNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
