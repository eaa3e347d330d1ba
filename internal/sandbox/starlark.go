package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// starlarkMaxSteps bounds interpreter work for the in-process tier. Starlark
// counts abstract execution steps, which is the only resource ceiling
// available without a subprocess; exceeding it reports a resource_limit
// outcome.
const starlarkMaxSteps = 10_000_000

// StarlarkTier executes code in-process with the Starlark interpreter — a
// Python dialect whose universe is a closed allow-list of pure builtins: no
// file, network, process, or import access exists to take away.
//
// This is the weakest isolation tier. It shares the host process's memory
// and cannot be resource-limited the way subprocess tiers can; only the step
// budget and cancellation bound it. Its probe always succeeds (the runtime
// is compiled in), and it supports exactly one language.
type StarlarkTier struct {
	logger *slog.Logger
}

func NewStarlarkTier(logger *slog.Logger) *StarlarkTier {
	return &StarlarkTier{logger: logger}
}

func (s *StarlarkTier) Tier() Tier { return TierStarlark }

func (s *StarlarkTier) Supports(lang Language) bool {
	return lang == LanguagePython
}

// Probe always succeeds: the interpreter is part of the binary.
func (s *StarlarkTier) Probe(ctx context.Context) error {
	return nil
}

func (s *StarlarkTier) Execute(ctx context.Context, req Request, limits Limits) (*Outcome, error) {
	start := time.Now()

	if !s.Supports(req.Language) {
		return &Outcome{
			Text:      fmt.Sprintf("the in-process sandbox only supports python code; %s needs a subprocess tier", req.Language),
			Tier:      TierStarlark,
			ErrorKind: ErrorKindUnavailable,
			Duration:  time.Since(start),
		}, nil
	}

	// print output is collected through the thread's Print hook — there is
	// no process-global stream to redirect and restore.
	var buf strings.Builder
	thread := &starlark.Thread{
		Name: "sandbox",
		Print: func(_ *starlark.Thread, msg string) {
			buf.WriteString(msg)
			buf.WriteByte('\n')
		},
	}
	thread.SetMaxExecutionSteps(starlarkMaxSteps)

	execCtx, cancel := context.WithTimeout(ctx, limits.WallClock)
	defer cancel()
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-execCtx.Done():
			thread.Cancel("wall clock exceeded")
		case <-watchDone:
		}
	}()

	// Options chosen to accept as much python-looking input as Starlark can:
	// while loops, set literals, top-level control flow, reassignment,
	// recursion.
	opts := &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
		Recursion:       true,
	}

	_, err := starlark.ExecFileOptions(opts, thread, "input.py", req.Code, nil)
	duration := time.Since(start)

	if err != nil {
		if execCtx.Err() != nil {
			return &Outcome{
				Text:      fmt.Sprintf("execution timed out after %s", limits.WallClock),
				Tier:      TierStarlark,
				ErrorKind: ErrorKindTimeout,
				ExitCode:  -1,
				Duration:  duration,
			}, nil
		}
		if strings.Contains(err.Error(), "too many steps") {
			return &Outcome{
				Text:      "execution exceeded the interpreter step budget",
				Tier:      TierStarlark,
				ErrorKind: ErrorKindResourceLimit,
				ExitCode:  -1,
				Duration:  duration,
			}, nil
		}

		// The user's code failed — syntax error or a runtime error with a
		// backtrace. That is normal output, never a fallthrough.
		text := buf.String()
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			text += evalErr.Backtrace()
		} else {
			text += err.Error()
		}
		return &Outcome{
			Text:      text,
			Tier:      TierStarlark,
			ErrorKind: ErrorKindNone,
			ExitCode:  1,
			Duration:  duration,
		}, nil
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		text = "code executed successfully (no output)"
	}
	return &Outcome{
		Text:      text,
		Tier:      TierStarlark,
		ErrorKind: ErrorKindNone,
		Duration:  duration,
	}, nil
}
