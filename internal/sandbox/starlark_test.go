package sandbox

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStarlark() *StarlarkTier {
	return NewStarlarkTier(slog.New(slog.DiscardHandler))
}

func TestStarlarkPrintOutput(t *testing.T) {
	out, err := newStarlark().Execute(context.Background(),
		Request{Code: "print(2 + 2)", Language: LanguagePython}, DefaultLimits())

	require.NoError(t, err)
	assert.Equal(t, "4\n", out.Text)
	assert.Equal(t, TierStarlark, out.Tier)
	assert.Equal(t, ErrorKindNone, out.ErrorKind)
	assert.Equal(t, 0, out.ExitCode)
}

func TestStarlarkNoOutput(t *testing.T) {
	out, err := newStarlark().Execute(context.Background(),
		Request{Code: "x = 1 + 1", Language: LanguagePython}, DefaultLimits())

	require.NoError(t, err)
	assert.Equal(t, "code executed successfully (no output)", out.Text)
}

func TestStarlarkSupportsCommonPythonConstructs(t *testing.T) {
	code := `
def fib(n):
    a, b = 0, 1
    i = 0
    while i < n:
        a, b = b, a + b
        i += 1
    return a

results = [fib(n) for n in range(8)]
print(results)
`
	out, err := newStarlark().Execute(context.Background(),
		Request{Code: code, Language: LanguagePython}, DefaultLimits())

	require.NoError(t, err)
	assert.Equal(t, "[0, 1, 1, 2, 3, 5, 8, 13]\n", out.Text)
}

func TestStarlarkUserErrorIsOutputNotFallthrough(t *testing.T) {
	// The error must be a runtime one: anything caught by the resolver would
	// reject the program before the first print executes.
	out, err := newStarlark().Execute(context.Background(),
		Request{Code: `print("before")` + "\nx = 1 // 0", Language: LanguagePython}, DefaultLimits())

	// The tier succeeded; the program did not.
	require.NoError(t, err)
	assert.Equal(t, ErrorKindNone, out.ErrorKind)
	assert.Equal(t, 1, out.ExitCode)
	assert.Contains(t, out.Text, "before")
	assert.Contains(t, out.Text, "division by zero")
}

func TestStarlarkSyntaxErrorIsOutput(t *testing.T) {
	out, err := newStarlark().Execute(context.Background(),
		Request{Code: "def broken(:", Language: LanguagePython}, DefaultLimits())

	require.NoError(t, err)
	assert.Equal(t, ErrorKindNone, out.ErrorKind)
	assert.Equal(t, 1, out.ExitCode)
	assert.NotEmpty(t, out.Text)
}

func TestStarlarkStepBudget(t *testing.T) {
	// An infinite loop burns through the step budget well before any wall
	// clock would fire.
	out, err := newStarlark().Execute(context.Background(),
		Request{Code: "while True:\n    pass", Language: LanguagePython}, DefaultLimits())

	require.NoError(t, err)
	assert.Equal(t, ErrorKindResourceLimit, out.ErrorKind)
	assert.Contains(t, out.Text, "step budget")
}

func TestStarlarkWallClockTimeout(t *testing.T) {
	limits := DefaultLimits()
	limits.WallClock = 50 * time.Millisecond

	// Heavy but step-cheap work: string building grows slowly in steps while
	// consuming real time.
	code := `
s = "x"
while True:
    s = s + s[:1000000]
`
	out, err := newStarlark().Execute(context.Background(),
		Request{Code: code, Language: LanguagePython}, limits)

	require.NoError(t, err)
	assert.Contains(t, []ErrorKind{ErrorKindTimeout, ErrorKindResourceLimit}, out.ErrorKind)
}

func TestStarlarkRejectsShell(t *testing.T) {
	out, err := newStarlark().Execute(context.Background(),
		Request{Code: "echo hi", Language: LanguageShell}, DefaultLimits())

	require.NoError(t, err)
	assert.Equal(t, ErrorKindUnavailable, out.ErrorKind)
	assert.True(t, strings.Contains(out.Text, "only supports python"))
}

func TestStarlarkNoHostAccess(t *testing.T) {
	// open() and friends simply don't exist in the Starlark universe, so
	// escape attempts surface as ordinary runtime errors in the output.
	for _, code := range []string{
		`open("/etc/passwd")`,
		`import os`,
		`__import__("os")`,
	} {
		out, err := newStarlark().Execute(context.Background(),
			Request{Code: code, Language: LanguagePython}, DefaultLimits())

		require.NoError(t, err)
		assert.Equal(t, ErrorKindNone, out.ErrorKind)
		assert.Equal(t, 1, out.ExitCode, "code %q should fail inside the interpreter", code)
	}
}
