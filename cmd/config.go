package cmd

import (
	"github.com/spf13/cobra"
)

func newConfigCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:               "config",
		Short:             "print the effective configuration",
		Long:              `print the configuration after defaults, the config file, environment variables and flags are merged.`,
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
