package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOpts struct {
	config  string
	verbose bool
	delay   time.Duration
}

func newTestCmd(opts *testOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:  "tool",
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error { return nil },
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.config, "config", "", "")
	fs.BoolVar(&opts.verbose, "verbose", false, "")
	fs.DurationVar(&opts.delay, "extra-delay", 0, "")
	return cmd
}

func TestBindEnv_FromEnvironment(t *testing.T) {
	t.Setenv("TOOL_CONFIG", "/etc/tool.yaml")
	t.Setenv("TOOL_VERBOSE", "true")
	t.Setenv("TOOL_EXTRA_DELAY", "3s")

	var opts testOpts
	cmd := newTestCmd(&opts)
	if err := BindEnv(cmd, "TOOL"); err != nil {
		t.Fatalf("BindEnv: %v", err)
	}
	cmd.SetArgs(nil)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if opts.config != "/etc/tool.yaml" {
		t.Errorf("expected config from env, got %q", opts.config)
	}
	if !opts.verbose {
		t.Error("expected verbose from env")
	}
	if opts.delay != 3*time.Second {
		t.Errorf("expected delay 3s from env, got %v", opts.delay)
	}
}

func TestBindEnv_FlagWins(t *testing.T) {
	t.Setenv("TOOL_CONFIG", "/etc/tool.yaml")

	var opts testOpts
	cmd := newTestCmd(&opts)
	if err := BindEnv(cmd, "TOOL"); err != nil {
		t.Fatalf("BindEnv: %v", err)
	}
	cmd.SetArgs([]string{"--config", "local.yaml"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if opts.config != "local.yaml" {
		t.Errorf("expected command-line value, got %q", opts.config)
	}
}

func TestBindEnv_InvalidValue(t *testing.T) {
	t.Setenv("TOOL_EXTRA_DELAY", "soon")

	var opts testOpts
	err := BindEnv(newTestCmd(&opts), "TOOL")
	if err == nil {
		t.Fatal("expected error for unparsable env value")
	}
	if !strings.Contains(err.Error(), "TOOL_EXTRA_DELAY") {
		t.Errorf("expected error to name the variable, got %v", err)
	}
}

func TestConfigure(t *testing.T) {
	cmd := &cobra.Command{Use: "tool", Version: "1.2.3"}
	Configure(cmd, "tool", "1.2.3")
	if !cmd.SilenceErrors || !cmd.SilenceUsage {
		t.Error("expected errors and usage to be silenced")
	}
}
