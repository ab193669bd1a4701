// Package cli holds the flag plumbing shared by the command-line tools.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BindEnv lets every flag of cmd be set from an environment variable named
// <PREFIX>_<FLAG>, with dashes replaced by underscores. Flags given on the
// command line win over the environment.
func BindEnv(cmd *cobra.Command, prefix string) error {
	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = err
			return
		}
		if err := v.BindEnv(f.Name); err != nil {
			bindErr = err
			return
		}
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				bindErr = fmt.Errorf("invalid value for %s from environment: %w", strings.ToUpper(prefix+"_"+strings.ReplaceAll(f.Name, "-", "_")), err)
			}
		}
	})
	return bindErr
}

// Configure applies the settings both tools share: no completion or help
// subcommands, and errors reported once by the caller.
func Configure(cmd *cobra.Command, name, version string) {
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate(name + " v{{.Version}}\n")
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
}
