package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("unit-test-secret-0123456789")
	require.NoError(t, err)
	return ts
}

func TestTokenRoundTrip(t *testing.T) {
	ts := newTokens(t)

	token, err := ts.Generate("user-abc")
	require.NoError(t, err)

	userID, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-abc", userID)
}

func TestTokenExpired(t *testing.T) {
	ts := newTokens(t)

	token, err := ts.GenerateWithDuration("user-abc", -time.Minute)
	require.NoError(t, err)

	_, err = ts.Validate(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestTokenWrongSecret(t *testing.T) {
	ts := newTokens(t)
	other, err := NewTokenService("a-completely-different-secret")
	require.NoError(t, err)

	token, err := ts.Generate("user-abc")
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err, "a token signed with another secret must not validate")
}

func TestTokenTampered(t *testing.T) {
	ts := newTokens(t)

	token, err := ts.Generate("user-abc")
	require.NoError(t, err)

	_, err = ts.Validate(token + "x")
	assert.Error(t, err)

	_, err = ts.Validate("not.a.jwt")
	assert.Error(t, err)
}

func TestNewTokenServiceRejectsShortSecret(t *testing.T) {
	_, err := NewTokenService("short")
	assert.Error(t, err)
}
