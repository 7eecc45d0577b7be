package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/ecs-deployer/pkg/config"
	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

func newRollbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback -t <tag>",
		Short: "Roll the service back to a version already in the registry",
		Long: `Register a task definition revision for an image that is already in the
registry and update the ECS service. Nothing is built or pushed. Use
"deployer list" to see the available tags.`,
		Example: `  deployer rollback -t a1b2c3d
  deployer rollback a1b2c3d`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				if cfg.RollbackTag != "" && cfg.RollbackTag != args[0] {
					return models.Wrap(models.ErrMissingInput, "rollback",
						fmt.Errorf("conflicting tags %q and %q", cfg.RollbackTag, args[0]))
				}
				cfg = cfg.WithRollbackTag(args[0])
			}

			a, err := newApp(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.manager.Rollback(cmd.Context(), cfg.RollbackTag)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringP("tag", "t", "", "version tag to roll back to")
	cmd.Flags().Duration("timeout", config.DefaultWaitTimeout, "how long to wait for the service to become stable")
	return cmd
}
