// Package sandbox implements a multi-tier sandboxed code execution chain.
//
// A single entry point (Chain.Execute) accepts a snippet of code and walks an
// ordered list of isolation tiers — Docker container, firejail profile jail,
// namespace+chroot jail, in-process Starlark interpreter, unrestricted local
// execution — running the code on the first tier that is both available and
// applicable to the requested language.
//
// The crucial distinction the chain maintains: a tier that launched the code
// and produced output (including the user program's own traceback or non-zero
// exit) has SUCCEEDED, and its result is returned as-is. Falling through to a
// weaker tier happens only when the isolation mechanism itself failed —
// daemon unreachable, jail binary missing, chroot setup error.
package sandbox

import (
	"fmt"
	"strings"
	"time"
)

// Language identifies the interpreter a request targets.
type Language string

const (
	LanguagePython Language = "python"
	LanguageShell  Language = "shell"
)

// ParseLanguage normalizes a caller-supplied language string.
// Unknown values are passed through so the error message can name them.
func ParseLanguage(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "python", "python3", "py":
		return LanguagePython
	case "shell", "sh", "bash":
		return LanguageShell
	default:
		return Language(strings.ToLower(strings.TrimSpace(s)))
	}
}

// Request is one code execution request. Immutable; created per invocation.
type Request struct {
	Code     string
	Language Language
}

// Tier names one isolation mechanism in the fallback chain.
type Tier string

const (
	TierDocker    Tier = "docker"
	TierFirejail  Tier = "firejail"
	TierNamespace Tier = "namespace"
	TierStarlark  Tier = "starlark"
	TierLocal     Tier = "local"

	// TierNone marks an outcome no tier produced: the chain was exhausted
	// without any tier launching the code.
	TierNone Tier = "none"
)

// Label returns the human-readable name shown to callers in formatted output.
func (t Tier) Label() string {
	switch t {
	case TierDocker:
		return "Docker sandbox"
	case TierFirejail:
		return "Firejail sandbox"
	case TierNamespace:
		return "Namespace sandbox"
	case TierStarlark:
		return "Starlark sandbox"
	case TierLocal:
		return "Local execution (unsandboxed)"
	case TierNone:
		return "No sandbox tier"
	default:
		return string(t)
	}
}

// ErrorKind classifies how an execution ended. Program-level failures of the
// user's own code are NOT errors in this taxonomy — they surface as normal
// output with ErrorKindNone and a non-zero ExitCode.
type ErrorKind string

const (
	// ErrorKindNone means the tier ran the code to completion.
	ErrorKindNone ErrorKind = "none"
	// ErrorKindUnavailable means the isolation mechanism is not usable on this host.
	ErrorKindUnavailable ErrorKind = "unavailable"
	// ErrorKindTimeout means execution exceeded the wall-clock budget.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindResourceLimit means the process hit a memory/CPU/file/process ceiling.
	ErrorKindResourceLimit ErrorKind = "resource_limit"
	// ErrorKindRuntime means the isolation mechanism itself failed to launch or run.
	ErrorKindRuntime ErrorKind = "runtime_error"
	// ErrorKindTransient marks a recoverable failure (e.g. missing dependency)
	// that the chain retries exactly once after resolving.
	ErrorKindTransient ErrorKind = "transient"
)

// Outcome is the uniform result every tier produces. The chain prefixes Text
// with the tier label before returning it to the caller, so the caller can
// always tell which isolation level actually ran the code.
type Outcome struct {
	Text      string        `json:"text"`
	Tier      Tier          `json:"tier"`
	ErrorKind ErrorKind     `json:"errorKind"`
	ExitCode  int           `json:"exitCode"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded reports whether the tier ran the code to completion.
// The user program failing (non-zero exit) still counts as success here.
func (o *Outcome) Succeeded() bool {
	return o.ErrorKind == ErrorKindNone
}

// Policy carries the caller's per-session execution preferences. It toggles
// which tiers are eligible and whether the dependency resolver may act; it
// never changes a tier's resource limits.
type Policy struct {
	// PreferLocal skips every jail tier and dispatches straight to local
	// execution. No probe of any other tier happens when this is set.
	PreferLocal bool
	// AllowInstalls permits one on-demand package install when a run fails
	// with a recognizable missing-module error.
	AllowInstalls bool
	// AllowExec permits re-running the chain after a successful install.
	// Both flags must be set for the dependency resolver to act.
	AllowExec bool
}

// Status describes one tier's availability for diagnostics display.
type Status struct {
	Available bool   `json:"available"`
	Detail    string `json:"detail"`
}

// combineOutput merges a subprocess's streams into the single text surface
// the chain reports. The exit code is appended as a diagnostic — the program
// failing is the program's business, not the tier's.
func combineOutput(stdout, stderr string, exitCode int) string {
	out := stdout
	if stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += "STDERR:\n" + stderr
	}
	if exitCode != 0 {
		out += fmt.Sprintf("\nExit code: %d", exitCode)
	}
	if strings.TrimSpace(out) == "" {
		return "code executed successfully (no output)"
	}
	return out
}
