package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLddLibraries(t *testing.T) {
	out := `	linux-vdso.so.1 (0x00007ffd8a9f2000)
	libc.so.6 => /lib/x86_64-linux-gnu/libc.so.6 (0x00007f2a1c000000)
	libm.so.6 => /lib/x86_64-linux-gnu/libm.so.6 (0x00007f2a1bf19000)
	/lib64/ld-linux-x86-64.so.2 (0x00007f2a1c3c5000)
	libfoo.so => not found
`
	libs := parseLddLibraries(out)

	assert.Equal(t, []string{
		"/lib/x86_64-linux-gnu/libc.so.6",
		"/lib/x86_64-linux-gnu/libm.so.6",
		"/lib64/ld-linux-x86-64.so.2",
	}, libs)
}

func TestParseLddLibrariesEmpty(t *testing.T) {
	assert.Empty(t, parseLddLibraries(""))
	assert.Empty(t, parseLddLibraries("\tstatically linked\n"))
}

func TestJailWrapperError(t *testing.T) {
	t.Run("unshare exec failure is a mechanism failure", func(t *testing.T) {
		err := jailWrapperError(execResult{
			exitCode: 127,
			stderr:   "unshare: failed to execute chroot: No such file or directory\n",
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "jail setup failed")
	})

	t.Run("chroot failure is a mechanism failure", func(t *testing.T) {
		err := jailWrapperError(execResult{
			exitCode: 126,
			stderr:   "chroot: cannot change root directory to '/tmp/x': Operation not permitted\n",
		})
		require.Error(t, err)
	})

	t.Run("user code exiting 127 stays output", func(t *testing.T) {
		// A shell script calling a missing command also exits 127; only the
		// wrapper's own diagnostic advances the chain.
		err := jailWrapperError(execResult{
			exitCode: 127,
			stderr:   "sh: 1: nosuchcmd: not found\n",
		})
		assert.NoError(t, err)
	})

	t.Run("user traceback stays output", func(t *testing.T) {
		err := jailWrapperError(execResult{
			exitCode: 1,
			stderr:   "Traceback (most recent call last):\n  ...\nZeroDivisionError: division by zero\n",
		})
		assert.NoError(t, err)
	})
}

func TestRestrictedEnv(t *testing.T) {
	env := restrictedEnv()

	assert.Contains(t, env, "PATH=/usr/bin:/bin")
	assert.Contains(t, env, "PYTHONPATH=")
	assert.Contains(t, env, "PYTHONUNBUFFERED=1")
	for _, kv := range env {
		assert.NotContains(t, kv, "LD_PRELOAD", "loader override variables must never leak in")
	}
}
