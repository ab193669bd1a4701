// Command marathon smoke-tests the engine's multiplayer marathon mode: it
// starts a headless server and two clients a few seconds apart, lets them
// play for a while, then kills every engine process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dskow/okey-devtools/internal/cli"
	"github.com/dskow/okey-devtools/internal/config"
	"github.com/dskow/okey-devtools/internal/logging"
	"github.com/dskow/okey-devtools/internal/metrics"
	"github.com/dskow/okey-devtools/internal/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

type options struct {
	configPath string
	verbose    bool
}

func newCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "marathon",
		Short:   "Launch a marathon server and two clients, then kill them.",
		Args:    cobra.NoArgs,
		Version: releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file (env: MARATHON_CONFIG)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging (env: MARATHON_VERBOSE)")

	cli.Configure(cmd, "marathon", releaseVersion)
	cobra.CheckErr(cli.BindEnv(cmd, "MARATHON"))

	return cmd
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "message", w)
	}
	logger.Info("configuration loaded",
		"engine", cfg.Runner.EnginePath,
		"instances", len(cfg.Runner.Instances),
		"log_dir", cfg.Runner.LogDir,
		"kill_pattern", cfg.Runner.KillPattern,
	)

	reg := prometheus.NewRegistry()
	metrics.Init(reg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := runner.NewOutputWatcher(logger)
	if err != nil {
		logger.Warn("instance output will not be watched", "error", err)
	} else {
		defer watcher.Stop()
	}

	launcher := runner.NewExecLauncher(cfg.Runner.ReapTimeout, logger)
	runner.New(cfg.Runner, launcher, watcher, logger).Run(ctx)

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			logger.Error("failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}

	logger.Info("marathon run finished")
	return nil
}

func main() {
	cobra.CheckErr(newCmd(&options{}).Execute())
}
