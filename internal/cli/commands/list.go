package commands

import (
	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent versions in the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			if err := validateFormat(format); err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			versions, err := a.manager.List(cmd.Context())
			if err != nil {
				return err
			}
			return printVersions(cmd.OutOrStdout(), format, versions)
		},
	}

	cmd.Flags().StringP("output", "o", FormatTable, "output format (table, json, yaml)")
	return cmd
}
