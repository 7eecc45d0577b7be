package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults for the documented CLI options
const (
	DefaultRegion      = "us-east-1"
	DefaultRepository  = "app"
	DefaultCluster     = "app-cluster"
	DefaultService     = "app-service"
	DefaultFamily      = "app-task"
	DefaultWaitTimeout = 10 * time.Minute
)

// Config is the immutable configuration record for one invocation
type Config struct {
	AWS      AWSConfig
	Registry RegistryConfig
	ECS      ECSConfig
	Build    BuildConfig
	TaskDef  TaskDefConfig
	Deploy   DeployConfig
	Log      LogConfig
	Tracing  TracingConfig
	Events   EventsConfig

	// RollbackTag is the release identifier to roll back to, if any
	RollbackTag string
}

// AWSConfig holds AWS session settings
type AWSConfig struct {
	Region  string
	Profile string
}

// RegistryConfig holds ECR settings
type RegistryConfig struct {
	// URI is the full repository URI (account.dkr.ecr.region.amazonaws.com/name).
	// Resolved from Repository when empty.
	URI        string
	Repository string
}

// ECSConfig identifies the orchestration targets
type ECSConfig struct {
	Cluster string
	Service string
	Family  string
}

// BuildConfig holds local image build settings
type BuildConfig struct {
	ContextDir string
	Dockerfile string
	Platform   string
	NoCache    bool
	Timeout    time.Duration
}

// TaskDefConfig describes the fallback task definition used when the family
// has never been registered
type TaskDefConfig struct {
	CPU              string
	Memory           string
	ContainerName    string
	Port             int
	LogGroup         string
	ExecutionRoleARN string
}

// DeployConfig holds convergence wait settings
type DeployConfig struct {
	WaitTimeout  time.Duration
	WaitMinDelay time.Duration
	WaitMaxDelay time.Duration
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRate     float64
	Insecure       bool
}

// EventsConfig holds the optional release event journal settings
type EventsConfig struct {
	RedisURL string
	Password string
	DB       int
	Retain   int
}

// flagKeys maps CLI flag names to configuration keys
var flagKeys = map[string]string{
	"region":     "aws.region",
	"profile":    "aws.profile",
	"registry":   "registry.uri",
	"repository": "registry.repository",
	"cluster":    "ecs.cluster",
	"service":    "ecs.service",
	"family":     "ecs.family",
	"context":    "build.context",
	"dockerfile": "build.dockerfile",
	"platform":   "build.platform",
	"no-cache":   "build.no_cache",
	"timeout":    "deploy.wait_timeout",
	"tag":        "rollback.tag",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Load builds the configuration record from defaults, an optional deployer.yaml,
// DEPLOYER_* environment variables and the given flags, in increasing precedence.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetConfigName("deployer")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("DEPLOYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := Config{
		AWS: AWSConfig{
			Region:  v.GetString("aws.region"),
			Profile: v.GetString("aws.profile"),
		},
		Registry: RegistryConfig{
			URI:        strings.TrimSuffix(v.GetString("registry.uri"), "/"),
			Repository: v.GetString("registry.repository"),
		},
		ECS: ECSConfig{
			Cluster: v.GetString("ecs.cluster"),
			Service: v.GetString("ecs.service"),
			Family:  v.GetString("ecs.family"),
		},
		Build: BuildConfig{
			ContextDir: v.GetString("build.context"),
			Dockerfile: v.GetString("build.dockerfile"),
			Platform:   v.GetString("build.platform"),
			NoCache:    v.GetBool("build.no_cache"),
			Timeout:    v.GetDuration("build.timeout"),
		},
		TaskDef: TaskDefConfig{
			CPU:              v.GetString("taskdef.cpu"),
			Memory:           v.GetString("taskdef.memory"),
			ContainerName:    v.GetString("taskdef.container_name"),
			Port:             v.GetInt("taskdef.port"),
			LogGroup:         v.GetString("taskdef.log_group"),
			ExecutionRoleARN: v.GetString("taskdef.execution_role_arn"),
		},
		Deploy: DeployConfig{
			WaitTimeout:  v.GetDuration("deploy.wait_timeout"),
			WaitMinDelay: v.GetDuration("deploy.wait_min_delay"),
			WaitMaxDelay: v.GetDuration("deploy.wait_max_delay"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Tracing: TracingConfig{
			Enabled:        v.GetBool("tracing.enabled"),
			ServiceName:    v.GetString("tracing.service_name"),
			ServiceVersion: v.GetString("tracing.service_version"),
			Environment:    v.GetString("tracing.environment"),
			OTLPEndpoint:   v.GetString("tracing.otlp_endpoint"),
			SampleRate:     v.GetFloat64("tracing.sample_rate"),
			Insecure:       v.GetBool("tracing.insecure"),
		},
		Events: EventsConfig{
			RedisURL: v.GetString("events.redis_url"),
			Password: v.GetString("events.password"),
			DB:       v.GetInt("events.db"),
			Retain:   v.GetInt("events.retain"),
		},
		RollbackTag: v.GetString("rollback.tag"),
	}

	// Values derived from the task family
	if cfg.TaskDef.ContainerName == "" {
		cfg.TaskDef.ContainerName = cfg.ECS.Family
	}
	if cfg.TaskDef.LogGroup == "" {
		cfg.TaskDef.LogGroup = "/ecs/" + cfg.ECS.Family
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// AWS defaults
	v.SetDefault("aws.region", DefaultRegion)
	v.SetDefault("aws.profile", "")

	// Registry defaults
	v.SetDefault("registry.uri", "")
	v.SetDefault("registry.repository", DefaultRepository)

	// ECS defaults
	v.SetDefault("ecs.cluster", DefaultCluster)
	v.SetDefault("ecs.service", DefaultService)
	v.SetDefault("ecs.family", DefaultFamily)

	// Build defaults
	v.SetDefault("build.context", ".")
	v.SetDefault("build.dockerfile", "Dockerfile")
	v.SetDefault("build.platform", "")
	v.SetDefault("build.no_cache", false)
	v.SetDefault("build.timeout", 30*time.Minute)

	// Fallback task definition defaults
	v.SetDefault("taskdef.cpu", "256")
	v.SetDefault("taskdef.memory", "512")
	v.SetDefault("taskdef.container_name", "")
	v.SetDefault("taskdef.port", 8080)
	v.SetDefault("taskdef.log_group", "")
	v.SetDefault("taskdef.execution_role_arn", "")

	// Convergence wait defaults
	v.SetDefault("deploy.wait_timeout", DefaultWaitTimeout)
	v.SetDefault("deploy.wait_min_delay", 15*time.Second)
	v.SetDefault("deploy.wait_max_delay", 2*time.Minute)

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "ecs-deployer")
	v.SetDefault("tracing.service_version", "1.0.0")
	v.SetDefault("tracing.environment", "production")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4318")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	// Event journal defaults
	v.SetDefault("events.redis_url", "")
	v.SetDefault("events.password", "")
	v.SetDefault("events.db", 0)
	v.SetDefault("events.retain", 100)

	v.SetDefault("rollback.tag", "")
}

// Validate checks that every required setting is present
func (c Config) Validate() error {
	required := map[string]string{
		"aws.region":  c.AWS.Region,
		"ecs.cluster": c.ECS.Cluster,
		"ecs.service": c.ECS.Service,
		"ecs.family":  c.ECS.Family,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must be configured", key)
		}
	}

	if c.Registry.URI == "" && c.Registry.Repository == "" {
		return errors.New("either registry.uri or registry.repository must be configured")
	}

	if c.Deploy.WaitTimeout <= 0 {
		return fmt.Errorf("deploy.wait_timeout must be positive, got %v", c.Deploy.WaitTimeout)
	}

	if c.Deploy.WaitMinDelay > c.Deploy.WaitMaxDelay {
		return fmt.Errorf("deploy.wait_min_delay (%v) exceeds deploy.wait_max_delay (%v)",
			c.Deploy.WaitMinDelay, c.Deploy.WaitMaxDelay)
	}

	return nil
}

// WithRollbackTag returns a copy of the record targeting the given tag
func (c Config) WithRollbackTag(tag string) Config {
	c.RollbackTag = tag
	return c
}

// RepositoryName returns the ECR repository name, taken from the path of
// registry.uri when one is configured
func (c Config) RepositoryName() string {
	if _, path, ok := strings.Cut(c.Registry.URI, "/"); ok && path != "" {
		return path
	}
	return c.Registry.Repository
}
