//go:build windows

package runner

import (
	"context"
	"os/exec"
)

// killCommand force-kills every process whose image name starts with
// pattern, along with its child processes.
func killCommand(ctx context.Context, pattern string) *exec.Cmd {
	return exec.CommandContext(ctx, "taskkill", "/F", "/T", "/IM", pattern+"*")
}

// noMatch reports taskkill's "process not found" exit status.
func noMatch(err *exec.ExitError) bool {
	return err.ExitCode() == 128
}
