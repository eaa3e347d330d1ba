package service_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/execbox/internal/apperror"
	"github.com/sakif/execbox/internal/auth"
	"github.com/sakif/execbox/internal/model"
	"github.com/sakif/execbox/internal/service"
)

// fakeUserRepo is an in-memory UserRepository keyed by GitHub ID.
type fakeUserRepo struct {
	byGitHubID map[int64]*model.User
	nextID     int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byGitHubID: make(map[int64]*model.User)}
}

func (r *fakeUserRepo) Upsert(ctx context.Context, user *model.User) error {
	if existing, ok := r.byGitHubID[user.GitHubID]; ok {
		user.ID = existing.ID
	} else {
		r.nextID++
		user.ID = string(rune('a' + r.nextID))
	}
	cp := *user
	r.byGitHubID[user.GitHubID] = &cp
	return nil
}

func (r *fakeUserRepo) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	for _, u := range r.byGitHubID {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("user", id)
}

func newAuthService(t *testing.T) (*service.AuthService, *fakeUserRepo, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16ch")
	require.NoError(t, err)
	repo := newFakeUserRepo()
	return service.NewAuthService(repo, tokens, slog.New(slog.DiscardHandler)), repo, tokens
}

func TestLoginOrRegisterGitHubIssuesToken(t *testing.T) {
	svc, _, tokens := newAuthService(t)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{
		ID:    1234,
		Login: "alice",
		Email: "alice@example.com",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, result.User.ID)
	assert.Equal(t, "alice", result.User.Login)

	// The issued token must validate and carry the internal user ID.
	userID, err := tokens.Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, userID)
}

func TestLoginTwiceKeepsSameAccount(t *testing.T) {
	svc, _, _ := newAuthService(t)

	first, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "bob"})
	require.NoError(t, err)

	second, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 7, Login: "bob-renamed"})
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)
	assert.Equal(t, "bob-renamed", second.User.Login)
}

func TestLoginRejectsNilUser(t *testing.T) {
	svc, _, _ := newAuthService(t)

	_, err := svc.LoginOrRegisterGitHub(context.Background(), nil)
	assert.Error(t, err)
}

func TestGetUserByID(t *testing.T) {
	svc, _, _ := newAuthService(t)

	result, err := svc.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 42, Login: "carol"})
	require.NoError(t, err)

	user, err := svc.GetUserByID(context.Background(), result.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", user.Login)

	_, err = svc.GetUserByID(context.Background(), "")
	assert.Error(t, err)
}
