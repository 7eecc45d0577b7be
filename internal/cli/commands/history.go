package commands

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/ecs-deployer/internal/queue"
	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent releases recorded in the release journal",
		Long: `Show the builds, deploys and rollbacks recorded for the service. Requires
the release journal (events.redis_url / DEPLOYER_EVENTS_REDIS_URL).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			if err := validateFormat(format); err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Events.RedisURL == "" {
				return models.Wrap(models.ErrMissingInput, "history",
					errors.New("events.redis_url is not configured"))
			}

			journal, err := queue.NewRedisJournal(cmd.Context(), queue.Options{
				URL:      cfg.Events.RedisURL,
				Password: cfg.Events.Password,
				DB:       cfg.Events.DB,
				Retain:   cfg.Events.Retain,
			})
			if err != nil {
				return models.Wrap(models.ErrDependencyMissing, "open release journal", err)
			}
			defer func() {
				if err := journal.Close(); err != nil {
					log.Warn().Err(err).Msg("Failed to close release journal")
				}
			}()

			events, err := journal.Recent(cmd.Context(), cfg.ECS.Cluster, cfg.ECS.Service, limit)
			if err != nil {
				return models.Wrap(models.ErrDependencyMissing, "read release journal", err)
			}
			return printEvents(cmd.OutOrStdout(), format, events)
		},
	}

	cmd.Flags().StringP("output", "o", FormatTable, "output format (table, json, yaml)")
	cmd.Flags().IntP("limit", "n", 20, "number of events to show")
	return cmd
}
