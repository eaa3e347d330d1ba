//go:build !unix

package sandbox

import (
	"context"
	"errors"
	"os/exec"
	"time"
)

type execResult struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
}

// The subprocess tiers need process groups and prlimit, neither of which
// exists here. Their probes report unavailable on non-unix hosts, so this
// stub is never reached in practice.
func runSupervised(ctx context.Context, cmd *exec.Cmd, wall time.Duration, afterStart func(pid int) error) (execResult, error) {
	return execResult{}, errors.New("sandbox: subprocess supervision is not supported on this platform")
}
