package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// LocalTier runs code with no isolation at all: the host interpreter, the
// host environment, the host filesystem. It is the terminal fallback — used
// only when every stronger tier has failed or been excluded, or when the
// caller's policy explicitly prefers local execution. Always available.
type LocalTier struct {
	logger *slog.Logger
}

func NewLocalTier(logger *slog.Logger) *LocalTier {
	return &LocalTier{logger: logger}
}

func (l *LocalTier) Tier() Tier { return TierLocal }

func (l *LocalTier) Supports(lang Language) bool {
	return lang == LanguagePython || lang == LanguageShell
}

// Probe always succeeds; whether the interpreter exists is discovered (and
// reported as output) at execution time, the same as any local command.
func (l *LocalTier) Probe(ctx context.Context) error {
	return nil
}

func (l *LocalTier) Execute(ctx context.Context, req Request, limits Limits) (*Outcome, error) {
	start := time.Now()

	scratch, err := writeCodeDir(req)
	if err != nil {
		return nil, fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	script := filepath.Join(scratch, scriptName(req.Language))
	argv := interpreterCmd(req.Language, script)
	interp, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("%s not found on PATH: %w", argv[0], err)
	}

	cmd := exec.Command(interp, argv[1:]...)
	cmd.Dir = scratch
	// Deliberately inherits the full host environment: this tier's contract
	// is the caller's original unrestricted execution path.
	cmd.Env = os.Environ()

	res, err := runSupervised(ctx, cmd, limits.WallClock, nil)
	if err != nil {
		return nil, fmt.Errorf("launching local process: %w", err)
	}

	if res.timedOut {
		return &Outcome{
			Text:      fmt.Sprintf("execution timed out after %s", limits.WallClock),
			Tier:      TierLocal,
			ErrorKind: ErrorKindTimeout,
			ExitCode:  -1,
			Duration:  time.Since(start),
		}, nil
	}
	return &Outcome{
		Text:      combineOutput(res.stdout, res.stderr, res.exitCode),
		Tier:      TierLocal,
		ErrorKind: ErrorKindNone,
		ExitCode:  res.exitCode,
		Duration:  time.Since(start),
	}, nil
}
