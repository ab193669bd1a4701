package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ExecLauncher starts engine processes with os/exec.
type ExecLauncher struct {
	logger      *slog.Logger
	reapTimeout time.Duration

	mu       sync.Mutex
	children []*child
}

type child struct {
	name     string
	cmd      *exec.Cmd
	done     chan struct{}
	exitedAt time.Time
}

// NewExecLauncher returns a launcher that waits up to reapTimeout for its
// children to exit after Terminate.
func NewExecLauncher(reapTimeout time.Duration, logger *slog.Logger) *ExecLauncher {
	return &ExecLauncher{logger: logger, reapTimeout: reapTimeout}
}

// Launch truncates spec.LogPath and starts the process with stdout and
// stderr both written to it. The log directory is created when missing.
// The process is not tied to ctx: it keeps running until Terminate.
func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) error {
	if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.Create(spec.LogPath)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	// The child holds its own descriptor once started.
	defer f.Close()

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Stdout = f
	cmd.Stderr = f
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", spec.Name, err)
	}

	c := &child{name: spec.Name, cmd: cmd, done: make(chan struct{})}
	go func() {
		cmd.Wait() //nolint:errcheck // exit state is read from cmd.ProcessState
		c.exitedAt = time.Now()
		close(c.done)
	}()

	l.mu.Lock()
	l.children = append(l.children, c)
	l.mu.Unlock()

	l.logger.Debug("instance started", "instance", spec.Name, "pid", cmd.Process.Pid, "args", spec.Args)
	return nil
}

// Terminate runs the platform kill command for pattern, then reaps the
// children started by this launcher. A pattern that matches nothing is
// not an error.
func (l *ExecLauncher) Terminate(ctx context.Context, pattern string) error {
	killedAt := time.Now()

	out, err := killCommand(ctx, pattern).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || !noMatch(exitErr) {
			return fmt.Errorf("killing %q: %w: %s", pattern, err, strings.TrimSpace(string(out)))
		}
		l.logger.Info("no running processes matched", "pattern", pattern)
	}

	l.reap(ctx, killedAt)
	return nil
}

func (l *ExecLauncher) reap(ctx context.Context, killedAt time.Time) {
	l.mu.Lock()
	children := make([]*child, len(l.children))
	copy(children, l.children)
	l.children = nil
	l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, l.reapTimeout)
	defer cancel()

	for _, c := range children {
		select {
		case <-c.done:
		case <-ctx.Done():
			l.logger.Warn("instance still running after kill", "instance", c.name, "pid", c.cmd.Process.Pid)
			continue
		}

		state := c.cmd.ProcessState.String()
		if c.exitedAt.Before(killedAt) {
			l.logger.Warn("instance exited before termination", "instance", c.name, "state", state)
			continue
		}
		l.logger.Debug("instance reaped", "instance", c.name, "state", state)
	}
}
