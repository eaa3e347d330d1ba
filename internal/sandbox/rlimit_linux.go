//go:build linux

package sandbox

import (
	"errors"

	"golang.org/x/sys/unix"
)

// applyRlimits installs the resource ceilings on an already-started child
// via prlimit(2). The child is still blocked in interpreter startup at this
// point, so the limits land before any user code runs.
//
// Best-effort by design: an unprivileged parent may not be allowed to raise
// or even set some limits. All failures are collected and reported to the
// caller, which logs and carries on — a weaker limit is not a reason to
// refuse execution at an already-weak tier.
func applyRlimits(pid int, limits Limits) error {
	var errs []error

	set := func(resource int, value uint64) {
		if value == 0 {
			return
		}
		rl := unix.Rlimit{Cur: value, Max: value}
		if err := unix.Prlimit(pid, resource, &rl, nil); err != nil {
			errs = append(errs, err)
		}
	}

	set(unix.RLIMIT_AS, uint64(limits.MemoryBytes))
	set(unix.RLIMIT_CPU, uint64(limits.CPUTime.Seconds()))
	set(unix.RLIMIT_FSIZE, uint64(limits.FileSizeBytes))
	set(unix.RLIMIT_NPROC, uint64(limits.MaxProcesses))

	return errors.Join(errs...)
}
