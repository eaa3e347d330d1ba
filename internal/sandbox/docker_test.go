package sandbox

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Exercises the real daemon; skipped in CI and wherever the daemon is down.
func TestDockerTier(t *testing.T) {
	if os.Getenv("CI") != "" {
		t.Skip("skipping docker test in CI environment")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := DefaultDockerConfig()
	cfg.PoolSize = 1

	tier := NewDockerTier(cfg, logger)
	defer tier.Close()

	if err := tier.Probe(context.Background()); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}

	t.Run("successful execution", func(t *testing.T) {
		out, err := tier.Execute(context.Background(),
			Request{Code: `print("hello from the sandbox")`, Language: LanguagePython}, DefaultLimits())

		require.NoError(t, err)
		assert.Contains(t, out.Text, "hello from the sandbox")
		assert.Equal(t, TierDocker, out.Tier)
		assert.Equal(t, ErrorKindNone, out.ErrorKind)
	})

	t.Run("user error is output", func(t *testing.T) {
		out, err := tier.Execute(context.Background(),
			Request{Code: `raise ValueError("boom")`, Language: LanguagePython}, DefaultLimits())

		require.NoError(t, err)
		assert.Equal(t, ErrorKindNone, out.ErrorKind)
		assert.NotEqual(t, 0, out.ExitCode)
		assert.Contains(t, out.Text, "ValueError")
	})

	t.Run("network is unreachable", func(t *testing.T) {
		code := `
import socket
try:
    socket.create_connection(("1.1.1.1", 80), timeout=2)
    print("connected")
except OSError as e:
    print("blocked:", e)
`
		out, err := tier.Execute(context.Background(),
			Request{Code: code, Language: LanguagePython}, DefaultLimits())

		require.NoError(t, err)
		assert.Contains(t, out.Text, "blocked")
	})

	t.Run("timeout", func(t *testing.T) {
		limits := DefaultLimits()
		limits.WallClock = 2 * time.Second

		out, err := tier.Execute(context.Background(),
			Request{Code: "import time\ntime.sleep(30)", Language: LanguagePython}, limits)

		require.NoError(t, err)
		assert.Equal(t, ErrorKindTimeout, out.ErrorKind)
	})
}
