//go:build !windows

package runner

import (
	"context"
	"os/exec"
)

// killCommand sends SIGKILL to every process whose command line matches
// pattern.
func killCommand(ctx context.Context, pattern string) *exec.Cmd {
	return exec.CommandContext(ctx, "pkill", "-9", "-f", pattern)
}

// noMatch reports pkill's "no processes matched" exit status.
func noMatch(err *exec.ExitError) bool {
	return err.ExitCode() == 1
}
