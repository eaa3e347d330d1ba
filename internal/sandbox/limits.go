package sandbox

import "time"

// Limits are the resource ceilings applied to a sandboxed process. They are
// constant per tier and embedded in executor configuration — caller policy
// only selects which tiers are eligible, never loosens a tier's limits.
//
// Enforcement is tier-specific: the Docker tier maps these onto the
// container's HostConfig, the firejail tier onto --rlimit-* flags, and the
// namespace/local jail path applies them with prlimit(2) on the started
// child (see rlimit_linux.go).
type Limits struct {
	// WallClock is the hard end-to-end execution budget, enforced at the
	// process-supervision level. On expiry the subprocess is killed and a
	// timeout outcome is returned.
	WallClock time.Duration
	// CPUTime caps consumed CPU seconds (RLIMIT_CPU).
	CPUTime time.Duration
	// MemoryBytes caps the address space (RLIMIT_AS / container memory).
	MemoryBytes int64
	// FileSizeBytes caps any single file the process writes (RLIMIT_FSIZE).
	FileSizeBytes int64
	// MaxProcesses caps the process count (RLIMIT_NPROC); fork bomb guard.
	MaxProcesses int
}

// DefaultLimits returns the cross-tier defaults: 30 s wall clock, 10 s CPU,
// 128 MB memory, 10 MB files, 10 processes. Individual tiers may override.
func DefaultLimits() Limits {
	return Limits{
		WallClock:     30 * time.Second,
		CPUTime:       10 * time.Second,
		MemoryBytes:   128 * 1024 * 1024,
		FileSizeBytes: 10 * 1024 * 1024,
		MaxProcesses:  10,
	}
}
