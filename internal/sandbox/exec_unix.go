//go:build unix

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"
)

// execResult is what runSupervised hands back to the subprocess tiers.
type execResult struct {
	stdout   string
	stderr   string
	exitCode int
	timedOut bool
}

// runSupervised starts cmd in its own process group, optionally applies a
// post-start hook (resource limits land here, while the child is still in
// interpreter startup), and supervises it against both the caller's context
// and the wall-clock budget. On either trigger the entire process group is
// killed — children included — so a fork-happy payload cannot outlive its
// request.
//
// A non-nil error means the process could not be launched or supervised at
// all; a normal non-zero exit of the child is reported in execResult, not as
// an error.
func runSupervised(ctx context.Context, cmd *exec.Cmd, wall time.Duration, afterStart func(pid int) error) (execResult, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// New process group so the kill below reaches grandchildren too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return execResult{}, err
	}
	pid := cmd.Process.Pid

	if afterStart != nil {
		// Limits are advisory at this point; failure to set them is the
		// caller's to log, not a reason to abort a started process.
		_ = afterStart(pid)
	}

	killGroup := func() {
		// Negative pid addresses the whole group.
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(wall, func() {
		timedOut.Store(true)
		killGroup()
	})
	defer timer.Stop()

	// Propagate caller cancellation to the process group.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			killGroup()
		case <-watchDone:
		}
	}()

	err := cmd.Wait()
	res := execResult{
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		timedOut: timedOut.Load(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
			return res, nil
		}
		if res.timedOut || ctx.Err() != nil {
			return res, nil
		}
		return res, err
	}
	return res, nil
}
