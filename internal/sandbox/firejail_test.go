package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFirejailArgs(t *testing.T) {
	limits := Limits{
		WallClock:     30 * time.Second,
		CPUTime:       10 * time.Second,
		MemoryBytes:   128 * 1024 * 1024,
		FileSizeBytes: 10 * 1024 * 1024,
		MaxProcesses:  10,
	}
	args := firejailArgs("/tmp/execbox-jail-123", limits)

	assert.Contains(t, args, "--private=/tmp/execbox-jail-123")
	assert.Contains(t, args, "--net=none")
	assert.Contains(t, args, "--read-only=/")
	assert.Contains(t, args, "--tmpfs=/tmp")
	assert.Contains(t, args, "--rlimit-as=134217728")
	assert.Contains(t, args, "--rlimit-cpu=10")
	assert.Contains(t, args, "--rlimit-fsize=10485760")
	assert.Contains(t, args, "--rlimit-nproc=10")
}

func TestFirejailArgsSkipsZeroLimits(t *testing.T) {
	args := firejailArgs("/tmp/x", Limits{WallClock: time.Second})

	for _, a := range args {
		assert.NotContains(t, a, "--rlimit-", "zero limits must not produce rlimit flags")
	}
}
