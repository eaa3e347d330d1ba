package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// FirejailTier confines the interpreter with a firejail security profile:
// a private filesystem view with a read-only root and an explicit allow-list
// of system directories, a private tmpfs on /tmp, no network, and inline
// rlimit constraints.
//
// A non-zero exit of the jailed program is appended to the output as a
// diagnostic — the tier ran, the program failed, and that distinction must
// reach the caller as output rather than as a fallthrough.
type FirejailTier struct {
	logger *slog.Logger
}

func NewFirejailTier(logger *slog.Logger) *FirejailTier {
	return &FirejailTier{logger: logger}
}

func (f *FirejailTier) Tier() Tier { return TierFirejail }

func (f *FirejailTier) Supports(lang Language) bool {
	return lang == LanguagePython || lang == LanguageShell
}

// Probe checks for the jail binary on PATH. Nothing else to verify: if the
// binary exists, constructing the jail is its job, not ours.
func (f *FirejailTier) Probe(ctx context.Context) error {
	if _, err := exec.LookPath("firejail"); err != nil {
		return fmt.Errorf("firejail not found on PATH: %w", err)
	}
	return nil
}

// Execute writes the code to a host temp file and runs it inside the jail
// under a hard wall-clock budget enforced at the supervision level.
func (f *FirejailTier) Execute(ctx context.Context, req Request, limits Limits) (*Outcome, error) {
	start := time.Now()

	path, err := exec.LookPath("firejail")
	if err != nil {
		return nil, fmt.Errorf("firejail not found on PATH: %w", err)
	}

	// The scratch dir becomes the jail's private home; the code file is the
	// only thing in it. Deleted on every exit path.
	scratch, err := writeCodeDir(req)
	if err != nil {
		return nil, fmt.Errorf("writing code file: %w", err)
	}
	defer os.RemoveAll(scratch)

	args := firejailArgs(scratch, limits)
	args = append(args, interpreterCmd(req.Language, scriptName(req.Language))...)

	cmd := exec.Command(path, args...)
	res, err := runSupervised(ctx, cmd, limits.WallClock, nil)
	if err != nil {
		return nil, fmt.Errorf("launching firejail: %w", err)
	}

	if res.timedOut {
		return &Outcome{
			Text:      fmt.Sprintf("execution timed out after %s", limits.WallClock),
			Tier:      TierFirejail,
			ErrorKind: ErrorKindTimeout,
			ExitCode:  -1,
			Duration:  time.Since(start),
		}, nil
	}

	return &Outcome{
		Text:      combineOutput(res.stdout, res.stderr, res.exitCode),
		Tier:      TierFirejail,
		ErrorKind: ErrorKindNone,
		ExitCode:  res.exitCode,
		Duration:  time.Since(start),
	}, nil
}

// firejailArgs builds the jail's restriction flags: minimal profile, private
// filesystem with an allow-list of system directories, tmpfs /tmp, no
// network, and the resource ceilings expressed as rlimits.
func firejailArgs(scratch string, limits Limits) []string {
	args := []string{
		"--quiet",
		"--noprofile",
		"--private=" + scratch,
		"--private-dev",
		"--private-etc",
		"--noexec=/tmp",
		"--noexec=/var",
		"--noexec=/home",
		"--read-only=/",
		"--whitelist=/usr",
		"--whitelist=/lib",
		"--whitelist=/lib64",
		"--whitelist=/bin",
		"--whitelist=/sbin",
		"--tmpfs=/tmp",
		"--net=none",
	}
	if limits.MemoryBytes > 0 {
		args = append(args, "--rlimit-as="+strconv.FormatInt(limits.MemoryBytes, 10))
	}
	if limits.CPUTime > 0 {
		args = append(args, "--rlimit-cpu="+strconv.Itoa(int(limits.CPUTime.Seconds())))
	}
	if limits.FileSizeBytes > 0 {
		args = append(args, "--rlimit-fsize="+strconv.FormatInt(limits.FileSizeBytes, 10))
	}
	if limits.MaxProcesses > 0 {
		args = append(args, "--rlimit-nproc="+strconv.Itoa(limits.MaxProcesses))
	}
	return args
}

// writeCodeDir creates a fresh scratch directory holding only the request's
// code file, named by language. Callers must RemoveAll it on every exit path.
func writeCodeDir(req Request) (string, error) {
	dir, err := os.MkdirTemp("", "execbox-jail-")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, scriptName(req.Language))
	if err := os.WriteFile(path, []byte(req.Code), 0o444); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}
