package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"time"
)

// missingModuleRE recognizes the one failure signature the resolver acts on:
// a Python "No module named 'foo'" import error. Deliberately narrow — the
// resolver must never guess package names out of arbitrary error text.
var missingModuleRE = regexp.MustCompile(`No module named ['"]([A-Za-z0-9_.\-]+)['"]`)

// MissingModule extracts the missing module name from execution output, or
// returns "" when the output doesn't match the recognized pattern.
func MissingModule(text string) string {
	m := missingModuleRE.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// Installer performs one on-demand package installation. Satisfied by
// PipInstaller in production and by fakes in tests.
type Installer interface {
	Install(ctx context.Context, pkg string) error
}

// PipInstaller installs a Python package with pip. Used by the chain for its
// single dependency-resolution retry; gated entirely by caller policy.
type PipInstaller struct {
	logger *slog.Logger
}

func NewPipInstaller(logger *slog.Logger) *PipInstaller {
	return &PipInstaller{logger: logger}
}

// Install runs `python3 -m pip install <pkg>` once, with a bounded budget.
func (p *PipInstaller) Install(ctx context.Context, pkg string) error {
	p.logger.Info("installing missing dependency", slog.String("package", pkg))

	installCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(installCtx, "python3", "-m", "pip", "install", "--user", pkg)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("pip install %s: %v (%s)", pkg, err, lastLine(string(out)))
	}
	return nil
}

// lastLine trims pip's chatty output to the line that matters for the error.
func lastLine(s string) string {
	lines := regexp.MustCompile(`\r?\n`).Split(s, -1)
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i] != "" {
			return lines[i]
		}
	}
	return ""
}
