// Command genkeys prints the anon and service role API keys for the local
// Supabase stack as NAME=token lines, ready to be appended to an env file.
package main

import (
	"context"
	"io"
	"os"

	"github.com/dskow/okey-devtools/internal/cli"
	"github.com/dskow/okey-devtools/internal/config"
	"github.com/dskow/okey-devtools/internal/keygen"
	"github.com/dskow/okey-devtools/internal/logging"
	"github.com/dskow/okey-devtools/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const releaseVersion = "0.1.0"

type options struct {
	configPath string
	secret     string
	verbose    bool
}

func newCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "genkeys",
		Short:   "Print signed anon and service role keys.",
		Args:    cobra.NoArgs,
		Version: releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file (env: GENKEYS_CONFIG)")
	fs.StringVar(&opts.secret, "secret", "", "HMAC secret, overrides keygen.secret (env: GENKEYS_SECRET)")
	fs.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging (env: GENKEYS_VERBOSE)")

	cli.Configure(cmd, "genkeys", releaseVersion)
	cobra.CheckErr(cli.BindEnv(cmd, "GENKEYS"))

	return cmd
}

func run(_ context.Context, opts *options, stdout io.Writer) error {
	cfg, err := config.LoadOrDefault(opts.configPath)
	if err != nil {
		return err
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	// stdout carries the key lines only.
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "message", w)
	}
	if opts.secret != "" {
		cfg.Keygen.Secret = opts.secret
		if len(opts.secret) < config.MinSecretLength {
			logger.Warn("secret is shorter than recommended", "min_length", config.MinSecretLength)
		}
	}

	reg := prometheus.NewRegistry()
	metrics.Init(reg)

	keys, err := keygen.New(cfg.Keygen).Generate(cfg.Keygen.Keys)
	if err != nil {
		logger.Error("key generation failed", "error", err)
		return err
	}
	logger.Debug("keys signed", "count", len(keys), "issuer", cfg.Keygen.Issuer, "lifetime", cfg.Keygen.Lifetime)

	if err := keygen.WriteEnv(stdout, keys); err != nil {
		return err
	}

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile, reg); err != nil {
			logger.Error("failed to write metrics", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
	return nil
}

func main() {
	cmd := newCmd(&options{})
	cmd.SetOut(os.Stdout)
	cobra.CheckErr(cmd.Execute())
}
