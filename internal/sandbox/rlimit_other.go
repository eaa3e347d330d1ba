//go:build !linux

package sandbox

// applyRlimits is a no-op off Linux. The jail tiers that call it probe as
// unavailable on other platforms anyway; this stub only keeps the package
// compiling for the Docker and Starlark tiers.
func applyRlimits(pid int, limits Limits) error {
	return nil
}
