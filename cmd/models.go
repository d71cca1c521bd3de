package cmd

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nvr-ai/tumorclassifier/inference"
)

func newModelsCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:               "models",
		Short:             "list the configured models",
		Args:              cobra.NoArgs,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			registry, err := cfg.Registry()
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Model", "Accuracy", "Parameters", "Artifact", "Description"})
			table.SetAutoWrapText(false)
			for _, d := range registry.Descriptors() {
				table.Append([]string{
					string(d.Name),
					inference.FormatConfidence(d.Accuracy) + "%",
					d.Parameters,
					d.Filename,
					d.Description,
				})
			}
			table.Render()
			return nil
		},
	}
}
