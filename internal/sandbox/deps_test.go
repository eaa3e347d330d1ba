package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissingModule(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{
			name: "single quotes",
			text: "Traceback (most recent call last):\n  File \"code.py\", line 1\nModuleNotFoundError: No module named 'requests'",
			want: "requests",
		},
		{
			name: "double quotes",
			text: `ImportError: No module named "numpy"`,
			want: "numpy",
		},
		{
			name: "dotted name",
			text: "No module named 'pkg.submodule'",
			want: "pkg.submodule",
		},
		{
			name: "plain failure is not a missing module",
			text: "NameError: name 'x' is not defined",
			want: "",
		},
		{
			name: "empty output",
			text: "",
			want: "",
		},
		{
			name: "success output",
			text: "code executed successfully (no output)",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MissingModule(tc.text))
		})
	}
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "error: resolution failed", lastLine("Collecting leftpad\ndownloading...\nerror: resolution failed\n"))
	assert.Equal(t, "", lastLine(""))
	assert.Equal(t, "only", lastLine("only"))
}
