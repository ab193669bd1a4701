// Package runner drives the marathon smoke test: it launches engine
// instances one after another with fixed pauses in between, then forcibly
// kills every engine process. It never waits for an instance to become
// ready; the pauses are the only ordering between launches.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/dskow/okey-devtools/internal/config"
	"github.com/dskow/okey-devtools/internal/metrics"
)

// terminateTimeout bounds the kill command and the reaping that follows it.
const terminateTimeout = 30 * time.Second

// ErrSkipped marks steps that never ran because the run was interrupted.
var ErrSkipped = errors.New("skipped: run interrupted")

// LaunchSpec describes one engine process.
type LaunchSpec struct {
	Name    string
	Path    string
	Args    []string
	LogPath string
}

// Step is a launch followed by a fixed wait.
type Step struct {
	Launch LaunchSpec
	Wait   time.Duration
}

// Launcher starts processes and kills them by name pattern.
type Launcher interface {
	// Launch starts the process with its combined output written to
	// spec.LogPath. It returns once the process has been started.
	Launch(ctx context.Context, spec LaunchSpec) error

	// Terminate forcibly kills every process matching pattern, including
	// ones this launcher did not start.
	Terminate(ctx context.Context, pattern string) error
}

// Report is what the runner observed about one instance.
type Report struct {
	Name        string
	LogPath     string
	LaunchErr   error
	Bytes       int64
	FirstOutput time.Duration // zero when the first write was not observed
}

// Runner executes the configured steps in order.
type Runner struct {
	cfg      config.RunnerConfig
	launcher Launcher
	watcher  *OutputWatcher
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Runner. watcher may be nil, in which case time to first
// output is not reported.
func New(cfg config.RunnerConfig, launcher Launcher, watcher *OutputWatcher, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		launcher: launcher,
		watcher:  watcher,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Steps returns the ordered launch list built from the configuration.
func (r *Runner) Steps() []Step {
	steps := make([]Step, 0, len(r.cfg.Instances))
	for _, inst := range r.cfg.Instances {
		steps = append(steps, Step{
			Launch: LaunchSpec{
				Name:    inst.Name,
				Path:    r.cfg.EnginePath,
				Args:    append([]string(nil), inst.Args...),
				LogPath: r.cfg.LogPath(inst),
			},
			Wait: inst.Delay,
		})
	}
	return steps
}

// Run launches every step, waits out each step's delay, and finally kills
// all processes matching the kill pattern. Launch failures are logged and do
// not stop the sequence. If ctx is cancelled the remaining launches and
// waits are skipped, but termination still runs.
func (r *Runner) Run(ctx context.Context) []Report {
	steps := r.Steps()
	reports := make([]Report, len(steps))

	for i, step := range steps {
		spec := step.Launch
		reports[i] = Report{Name: spec.Name, LogPath: spec.LogPath}

		if ctx.Err() != nil {
			reports[i].LaunchErr = ErrSkipped
			continue
		}

		r.logger.Info("starting instance", "instance", spec.Name, "log", spec.LogPath)
		metrics.StepWaitSeconds.WithLabelValues(spec.Name).Set(step.Wait.Seconds())

		started := time.Now()
		if err := r.launcher.Launch(ctx, spec); err != nil {
			r.logger.Warn("instance failed to launch", "instance", spec.Name, "error", err)
			metrics.LaunchesTotal.WithLabelValues(spec.Name, "error").Inc()
			reports[i].LaunchErr = err
		} else {
			metrics.LaunchesTotal.WithLabelValues(spec.Name, "ok").Inc()
			if r.watcher != nil {
				if err := r.watcher.Track(spec.Name, spec.LogPath, started); err != nil {
					r.logger.Debug("not watching instance output", "instance", spec.Name, "error", err)
				}
			}
		}

		r.logger.Debug("waiting", "instance", spec.Name, "delay", step.Wait)
		if err := r.sleep(ctx, step.Wait); err != nil {
			r.logger.Warn("run interrupted, skipping remaining steps", "error", err)
		}
	}

	r.terminate()
	r.summarize(reports)
	return reports
}

func (r *Runner) terminate() {
	r.logger.Info("test complete, killing instances", "pattern", r.cfg.KillPattern)

	ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
	defer cancel()

	if err := r.launcher.Terminate(ctx, r.cfg.KillPattern); err != nil {
		r.logger.Error("failed to kill instances", "pattern", r.cfg.KillPattern, "error", err)
		metrics.TerminationsTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.TerminationsTotal.WithLabelValues("ok").Inc()
}

func (r *Runner) summarize(reports []Report) {
	for i := range reports {
		rep := &reports[i]
		if rep.LaunchErr != nil {
			continue
		}

		if info, err := os.Stat(rep.LogPath); err == nil {
			rep.Bytes = info.Size()
		}
		if r.watcher != nil {
			if d, ok := r.watcher.FirstOutput(rep.Name); ok {
				rep.FirstOutput = d
				metrics.FirstOutputSeconds.WithLabelValues(rep.Name).Set(d.Seconds())
			}
		}
		metrics.OutputBytes.WithLabelValues(rep.Name).Set(float64(rep.Bytes))

		if rep.Bytes == 0 {
			r.logger.Warn("instance produced no output", "instance", rep.Name, "log", rep.LogPath)
			continue
		}
		r.logger.Info("instance output captured",
			"instance", rep.Name,
			"bytes", rep.Bytes,
			"first_output", rep.FirstOutput,
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
