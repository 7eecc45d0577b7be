package commands

import (
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/ecs-deployer/pkg/config"
)

func newDeployCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Build, push and roll the service onto the current revision",
		Long: `Build and push the current source revision, register a task definition
revision that runs it and update the ECS service. The command waits for the
service to become stable; running out of wait time is reported as a warning.

With --dry-run nothing is built or changed: the task definition that would be
registered is printed as YAML.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			dryRun, _ := cmd.Flags().GetBool("dry-run")

			a, err := newApp(cmd.Context(), cfg, !dryRun)
			if err != nil {
				return err
			}
			defer a.Close()

			if dryRun {
				spec, err := a.manager.Plan(cmd.Context(), "")
				if err != nil {
					return err
				}
				return printSpec(cmd.OutOrStdout(), spec)
			}

			result, err := a.manager.Deploy(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	addBuildFlags(cmd)
	cmd.Flags().Duration("timeout", config.DefaultWaitTimeout, "how long to wait for the service to become stable")
	cmd.Flags().Bool("dry-run", false, "print the task definition that would be registered and exit")
	return cmd
}
