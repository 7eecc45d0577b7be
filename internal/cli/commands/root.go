package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/ecs-deployer/internal/release"
	"github.com/alvesdmateus/ecs-deployer/pkg/config"
	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// Version is set at build time
var Version = "dev"

// NewRootCommand builds the deployer command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deployer",
		Short: "ecs-deployer - versioned container releases for Amazon ECS",
		Long: `ecs-deployer builds a container image from the current source revision,
publishes it to Amazon ECR and rolls an ECS service onto it.

Core Flow:
  git HEAD → docker build → ECR push → task definition revision → ECS service update`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			return setupLogging(level, format, verbose)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("region", "r", config.DefaultRegion, "AWS region")
	flags.String("profile", "", "AWS shared config profile")
	flags.StringP("registry", "e", "", "ECR repository URI (resolved from --repository when empty)")
	flags.String("repository", config.DefaultRepository, "ECR repository name")
	flags.StringP("cluster", "c", config.DefaultCluster, "ECS cluster name")
	flags.StringP("service", "s", config.DefaultService, "ECS service name")
	flags.StringP("family", "f", config.DefaultFamily, "ECS task definition family")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newBuildCommand(),
		newDeployCommand(),
		newRollbackCommand(),
		newListCommand(),
		newHistoryCommand(),
	)

	return rootCmd
}

// addBuildFlags registers the local image build options
func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().String("context", ".", "docker build context directory")
	cmd.Flags().String("dockerfile", "Dockerfile", "Dockerfile path relative to the build context")
	cmd.Flags().String("platform", "", "target platform (e.g. linux/amd64)")
	cmd.Flags().Bool("no-cache", false, "do not use the build cache")
}

// Execute runs the root command and exits with the workflow's status
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		event := log.Error().Err(err)
		if kind := release.Kind(err); kind != nil {
			event = event.Str("kind", kind.Error())
		}
		event.Msg("Command failed")
	}
	os.Exit(release.ExitCode(err))
}

// setupLogging configures the global zerolog logger. Logs go to stderr so
// command output on stdout stays machine readable.
func setupLogging(level, format string, verbose bool) error {
	if verbose {
		level = "debug"
	}

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		return models.Wrap(models.ErrMissingInput, "parse log level", fmt.Errorf("invalid log level %q", level))
	}
	zerolog.SetGlobalLevel(parsed)

	switch format {
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	case "console", "":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	default:
		return models.Wrap(models.ErrMissingInput, "configure logging", fmt.Errorf("unknown log format %q", format))
	}
	return nil
}

// loadConfig reads the configuration record for cmd
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return config.Config{}, models.Wrap(models.ErrMissingInput, "load configuration", err)
	}

	// log.level and log.format may also come from the file or environment
	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := setupLogging(cfg.Log.Level, cfg.Log.Format, verbose); err != nil {
		return config.Config{}, err
	}

	log.Debug().
		Str("region", cfg.AWS.Region).
		Str("cluster", cfg.ECS.Cluster).
		Str("service", cfg.ECS.Service).
		Str("family", cfg.ECS.Family).
		Msg("Configuration loaded")
	return cfg, nil
}
