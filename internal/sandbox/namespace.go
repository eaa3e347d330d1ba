package sandbox

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// NamespaceTier isolates the interpreter with Linux namespaces and chroot,
// shelling out to unshare(1) and chroot(1) rather than reimplementing them.
//
// It has two modes gated by process privilege:
//
//   - Privileged (euid 0): a minimal root filesystem skeleton is built per
//     request — directory scaffold, essential binaries, and their shared
//     library closure discovered with ldd — and the code runs inside new
//     PID/mount/network/IPC/UTS namespaces chrooted to that skeleton, with
//     rlimits applied to the child before it reaches user code. The skeleton
//     is deleted after the run regardless of outcome.
//
//   - Unprivileged: a plain scratch working directory with a pruned PATH,
//     empty module search path, and the same rlimits where settable. This is
//     a softer guarantee than the privileged mode and is reported as such in
//     the probe detail.
type NamespaceTier struct {
	logger *slog.Logger
}

func NewNamespaceTier(logger *slog.Logger) *NamespaceTier {
	return &NamespaceTier{logger: logger}
}

func (n *NamespaceTier) Tier() Tier { return TierNamespace }

func (n *NamespaceTier) Supports(lang Language) bool {
	return lang == LanguagePython || lang == LanguageShell
}

// Probe is itself two-tiered. Privileged: a trivial program must run through
// the full jail path — skeleton rootfs, namespace creation, chroot,
// interpreter startup. A cheaper tool-presence check would pass on hosts
// where the jailed interpreter can never actually start. Unprivileged: a
// trivial restricted subprocess run must succeed at all.
func (n *NamespaceTier) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if os.Geteuid() == 0 {
		out, err := n.executeJailed(probeCtx,
			Request{Code: "print('ok')", Language: LanguagePython},
			Limits{WallClock: 10 * time.Second})
		if err != nil {
			return fmt.Errorf("jail probe failed: %w", err)
		}
		if out.ExitCode != 0 || !strings.Contains(out.Text, "ok") {
			return fmt.Errorf("jail probe did not run: %s", strings.TrimSpace(out.Text))
		}
		return nil
	}

	// Not root: check that restricted subprocess execution works at all.
	interp, err := exec.LookPath("python3")
	if err != nil {
		return fmt.Errorf("python3 not found on PATH: %w", err)
	}
	dir, err := os.MkdirTemp("", "execbox-probe-")
	if err != nil {
		return fmt.Errorf("creating probe dir: %w", err)
	}
	defer os.RemoveAll(dir)

	probeFile := filepath.Join(dir, "probe.py")
	if err := os.WriteFile(probeFile, []byte("print('ok')\n"), 0o644); err != nil {
		return fmt.Errorf("writing probe file: %w", err)
	}
	cmd := exec.CommandContext(probeCtx, interp, probeFile)
	cmd.Dir = dir
	cmd.Env = restrictedEnv()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("restricted execution probe failed (unprivileged mode): %w", err)
	}
	return nil
}

func (n *NamespaceTier) Execute(ctx context.Context, req Request, limits Limits) (*Outcome, error) {
	if os.Geteuid() == 0 {
		return n.executeJailed(ctx, req, limits)
	}
	return n.executeRestricted(ctx, req, limits)
}

// executeJailed runs the code chrooted into a fresh skeleton rootfs inside
// new namespaces. Privileged mode only.
func (n *NamespaceTier) executeJailed(ctx context.Context, req Request, limits Limits) (*Outcome, error) {
	start := time.Now()

	// Resolve the wrapper tools with the parent's full PATH. The jail's
	// pruned PATH does not cover sbin, where chroot lives on some distros,
	// and a wrapper that can't exec must surface as a mechanism failure, not
	// as output.
	unsharePath, err := exec.LookPath("unshare")
	if err != nil {
		return nil, fmt.Errorf("unshare not found on PATH: %w", err)
	}
	chrootPath, err := exec.LookPath("chroot")
	if err != nil {
		return nil, fmt.Errorf("chroot not found on PATH: %w", err)
	}

	root, err := buildRootSkeleton()
	if err != nil {
		return nil, fmt.Errorf("building jail rootfs: %w", err)
	}
	// Ephemeral per request: fresh before, gone after, success or not.
	defer os.RemoveAll(root)

	script := scriptName(req.Language)
	jailHome := filepath.Join(root, "home", "sandbox")
	if err := os.WriteFile(filepath.Join(jailHome, script), []byte(req.Code), 0o644); err != nil {
		return nil, fmt.Errorf("placing code in jail: %w", err)
	}

	// The interpreter was copied into the skeleton at its host path, so
	// address it absolutely rather than trusting the jail PATH.
	argv := interpreterCmd(req.Language, "/home/sandbox/"+script)
	if abs, err := exec.LookPath(argv[0]); err == nil {
		argv[0] = abs
	}

	args := []string{
		"--pid", "--fork", "--mount-proc",
		"--net", "--ipc", "--uts",
		chrootPath, root,
	}
	args = append(args, argv...)

	cmd := exec.Command(unsharePath, args...)
	cmd.Env = restrictedEnv()

	res, err := runSupervised(ctx, cmd, limits.WallClock, func(pid int) error {
		if err := applyRlimits(pid, limits); err != nil {
			n.logger.Warn("could not apply all rlimits", slog.String("error", err.Error()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("launching jail: %w", err)
	}
	if !res.timedOut {
		if werr := jailWrapperError(res); werr != nil {
			return nil, werr
		}
	}
	return n.outcome(res, limits, start), nil
}

// jailWrapperError distinguishes the jail wrapper failing to launch the
// interpreter from the user's code failing inside the jail. unshare and
// chroot print a "tool: message" diagnostic and exit 126/127 before any user
// code runs; that is a mechanism failure and must advance the chain. The
// same exit codes from user code (e.g. a shell script calling a missing
// command) carry a different stderr and stay output.
func jailWrapperError(res execResult) error {
	if res.exitCode != 126 && res.exitCode != 127 {
		return nil
	}
	stderr := strings.TrimSpace(res.stderr)
	for _, prefix := range []string{"unshare:", "chroot:"} {
		if strings.HasPrefix(stderr, prefix) {
			return fmt.Errorf("jail setup failed: %s", stderr)
		}
	}
	return nil
}

// executeRestricted is the unprivileged fallback: scratch working directory,
// pruned environment, rlimits where the current privilege level allows.
func (n *NamespaceTier) executeRestricted(ctx context.Context, req Request, limits Limits) (*Outcome, error) {
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
	cmd.Env = restrictedEnv()

	res, err := runSupervised(ctx, cmd, limits.WallClock, func(pid int) error {
		if err := applyRlimits(pid, limits); err != nil {
			n.logger.Warn("could not apply all rlimits", slog.String("error", err.Error()))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("launching restricted subprocess: %w", err)
	}
	return n.outcome(res, limits, start), nil
}

func (n *NamespaceTier) outcome(res execResult, limits Limits, start time.Time) *Outcome {
	if res.timedOut {
		return &Outcome{
			Text:      fmt.Sprintf("execution timed out after %s", limits.WallClock),
			Tier:      TierNamespace,
			ErrorKind: ErrorKindTimeout,
			ExitCode:  -1,
			Duration:  time.Since(start),
		}
	}
	out := &Outcome{
		Text:      combineOutput(res.stdout, res.stderr, res.exitCode),
		Tier:      TierNamespace,
		ErrorKind: ErrorKindNone,
		ExitCode:  res.exitCode,
		Duration:  time.Since(start),
	}
	// SIGKILL or SIGXCPU from the rlimits set above.
	if res.exitCode == 137 || res.exitCode == 152 || strings.Contains(res.stderr, "MemoryError") {
		out.ErrorKind = ErrorKindResourceLimit
	}
	return out
}

// restrictedEnv is the pruned environment both modes run under: minimal
// PATH, empty module search path, unbuffered output.
func restrictedEnv() []string {
	return []string{
		"PATH=/usr/bin:/bin",
		"HOME=/home/sandbox",
		"USER=sandbox",
		"SHELL=/bin/sh",
		"PYTHONPATH=",
		"PYTHONDONTWRITEBYTECODE=1",
		"PYTHONUNBUFFERED=1",
		"LANG=C.UTF-8",
	}
}

// buildRootSkeleton assembles the minimal chroot filesystem: directory
// scaffold, essential binaries, and the shared libraries they link against.
func buildRootSkeleton() (string, error) {
	root, err := os.MkdirTemp("", "execbox-root-")
	if err != nil {
		return "", err
	}

	for _, dir := range []string{
		"bin", "usr/bin", "lib", "lib64", "usr/lib", "usr/lib64",
		"tmp", "home/sandbox", "proc", "dev",
	} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			os.RemoveAll(root)
			return "", err
		}
	}

	// Essential binaries; missing ones are skipped, the interpreter that
	// matters is resolved via PATH below.
	candidates := []string{"/bin/sh", "/bin/bash"}
	if interp, err := exec.LookPath("python3"); err == nil {
		candidates = append(candidates, interp)
		// The binary alone is not enough: the interpreter imports parts of
		// its standard library (encodings, site) before it reaches user code.
		if stdlib := pythonStdlibDir(interp); stdlib != "" {
			if err := copyTreeIntoRoot(root, stdlib); err != nil {
				os.RemoveAll(root)
				return "", fmt.Errorf("copying python stdlib: %w", err)
			}
		}
	}
	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		if err := copyIntoRoot(root, bin); err != nil {
			continue
		}
		// Best effort: a binary without its library closure fails loudly
		// inside the jail, which the output surfaces.
		copyLibraryClosure(root, bin)
	}

	return root, nil
}

// copyLibraryClosure walks bin's dynamic dependencies with ldd and copies
// each resolved library into the skeleton at its original path.
func copyLibraryClosure(root, bin string) {
	out, err := exec.Command("ldd", bin).Output()
	if err != nil {
		return
	}
	for _, lib := range parseLddLibraries(string(out)) {
		_ = copyIntoRoot(root, lib)
	}
}

// parseLddLibraries extracts resolved library paths from ldd output.
// Handles both "libc.so.6 => /lib/x86_64-linux-gnu/libc.so.6 (0x...)" and
// the loader line "/lib64/ld-linux-x86-64.so.2 (0x...)".
func parseLddLibraries(lddOut string) []string {
	var libs []string
	for _, line := range strings.Split(lddOut, "\n") {
		fields := strings.Fields(line)
		if i := strings.Index(line, "=>"); i >= 0 {
			rest := strings.Fields(line[i+2:])
			if len(rest) > 0 && strings.HasPrefix(rest[0], "/") {
				libs = append(libs, rest[0])
			}
			continue
		}
		if len(fields) > 0 && strings.HasPrefix(fields[0], "/") {
			libs = append(libs, fields[0])
		}
	}
	return libs
}

// pythonStdlibDir asks the interpreter where its standard library lives.
func pythonStdlibDir(interp string) string {
	out, err := exec.Command(interp, "-c",
		`import sysconfig; print(sysconfig.get_paths()["stdlib"])`).Output()
	if err != nil {
		return ""
	}
	dir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(dir) {
		return ""
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	return dir
}

// copyTreeIntoRoot mirrors a directory tree into the skeleton at its
// original absolute path. Unreadable entries are skipped; the jail surfaces
// any import that misses them.
func copyTreeIntoRoot(root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return os.MkdirAll(filepath.Join(root, strings.TrimPrefix(path, "/")), 0o755)
		}
		_ = copyIntoRoot(root, path)
		return nil
	})
}

// copyIntoRoot copies src into the skeleton preserving its absolute path.
func copyIntoRoot(root, src string) error {
	dst := filepath.Join(root, strings.TrimPrefix(src, "/"))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
