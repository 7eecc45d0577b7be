package commands

import (
	"github.com/spf13/cobra"
)

func newBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the current revision and push it to the registry",
		Long: `Build one image from the current source revision and push it to the
registry twice: as the short commit hash and as latest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.manager.Build(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	addBuildFlags(cmd)
	return cmd
}
