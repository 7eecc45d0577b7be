package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/alvesdmateus/ecs-deployer/internal/catalog"
	"github.com/alvesdmateus/ecs-deployer/internal/release"
	"github.com/alvesdmateus/ecs-deployer/internal/taskdef"
	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

func TestRootCommand_Flags(t *testing.T) {
	root := NewRootCommand()

	shorthands := map[string]string{
		"region":   "r",
		"registry": "e",
		"cluster":  "c",
		"service":  "s",
		"family":   "f",
		"verbose":  "v",
	}
	for name, short := range shorthands {
		flag := root.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, short, flag.Shorthand, name)
	}

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"build", "deploy", "rollback", "list", "history"}, names)

	rollback, _, err := root.Find([]string{"rollback"})
	require.NoError(t, err)
	tag := rollback.Flags().Lookup("tag")
	require.NotNil(t, tag)
	assert.Equal(t, "t", tag.Shorthand)

	deploy, _, err := root.Find([]string{"deploy"})
	require.NoError(t, err)
	assert.NotNil(t, deploy.Flags().Lookup("dry-run"))
	assert.NotNil(t, deploy.Flags().Lookup("context"))
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	require.NoError(t, setupLogging("warn", "console", false))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	require.NoError(t, setupLogging("warn", "json", true))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	assert.ErrorIs(t, setupLogging("loud", "console", false), models.ErrMissingInput)
	assert.ErrorIs(t, setupLogging("info", "xml", false), models.ErrMissingInput)
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DEPLOYER_EVENTS_REDIS_URL", "")
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRollback_ConflictingTags(t *testing.T) {
	_, err := runCommand(t, "rollback", "-t", "a1b2c3d", "f00dbab", "--log-level", "error")
	assert.ErrorIs(t, err, models.ErrMissingInput)
}

func TestList_InvalidFormat(t *testing.T) {
	_, err := runCommand(t, "list", "-o", "xml", "--log-level", "error")
	assert.ErrorIs(t, err, models.ErrMissingInput)
}

func TestHistory_RequiresJournal(t *testing.T) {
	_, err := runCommand(t, "history", "--log-level", "error")
	assert.ErrorIs(t, err, models.ErrMissingInput)
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := runCommand(t, "list", "-c", "", "--log-level", "error")
	assert.ErrorIs(t, err, models.ErrMissingInput)
}

func sampleVersions() []catalog.Version {
	pushed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []catalog.Version{
		{Tag: "a1b2c3d", Tags: []string{"a1b2c3d"}, Digest: "sha256:0123456789abcdef0123", PushedAt: pushed},
		{Tag: "f00dbab", Tags: []string{"f00dbab", "latest"}, Digest: "sha256:fedcba9876543210fedc", PushedAt: pushed.Add(time.Hour)},
	}
}

func TestPrintVersions_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printVersions(&buf, FormatTable, sampleVersions()))

	out := buf.String()
	assert.Contains(t, out, "TAG")
	assert.Contains(t, out, "a1b2c3d")
	assert.Contains(t, out, "f00dbab, latest")
	assert.Contains(t, out, "sha256:0123456789ab")
	assert.NotContains(t, out, "sha256:0123456789abcdef0123")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("a1b2c3d")), bytes.Index(buf.Bytes(), []byte("f00dbab")))
}

func TestPrintVersions_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printVersions(&buf, FormatTable, nil))
	assert.Contains(t, buf.String(), "No versions found.")

	buf.Reset()
	require.NoError(t, printVersions(&buf, FormatJSON, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestPrintVersions_Structured(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printVersions(&buf, FormatJSON, sampleVersions()))

	var decoded []catalog.Version
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "f00dbab", decoded[1].Tag)

	buf.Reset()
	require.NoError(t, printVersions(&buf, FormatYAML, sampleVersions()))

	var fromYAML []map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	require.Len(t, fromYAML, 2)
	assert.Equal(t, "a1b2c3d", fromYAML[0]["tag"])
}

func TestPrintEvents(t *testing.T) {
	event := models.NewReleaseEvent(models.ActionRollback)
	event.Identifier = "a1b2c3d"
	event.Outcome = models.OutcomeTimedOut

	var buf bytes.Buffer
	require.NoError(t, printEvents(&buf, FormatTable, []models.ReleaseEvent{*event}))
	assert.Contains(t, buf.String(), "ROLLBACK")
	assert.Contains(t, buf.String(), "TIMED_OUT")

	buf.Reset()
	require.NoError(t, printEvents(&buf, FormatTable, nil))
	assert.Contains(t, buf.String(), "No release events recorded.")
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, &release.Result{
		Action:         models.ActionDeploy,
		Identifier:     "a1b2c3d",
		ImageRef:       "repo:a1b2c3d",
		TaskDefinition: "arn:aws:ecs:us-east-1:123456789012:task-definition/app-task:7",
		Outcome:        models.OutcomeTimedOut,
		Warnings:       []string{"service app-service did not stabilize"},
	}))

	out := buf.String()
	assert.Contains(t, out, "DEPLOY")
	assert.Contains(t, out, "repo:a1b2c3d")
	assert.Contains(t, out, "app-task:7")
	assert.Contains(t, out, "TIMED_OUT")
	assert.Contains(t, out, "did not stabilize")
}

func TestPrintSpec(t *testing.T) {
	spec := taskdef.Default(taskdef.Template{
		Family:        "app-task",
		CPU:           "256",
		Memory:        "512",
		ContainerName: "app",
		Port:          8080,
		LogGroup:      "/ecs/app-task",
		Region:        "us-east-1",
	}, "repo:a1b2c3d")

	var buf bytes.Buffer
	require.NoError(t, printSpec(&buf, spec))

	out := buf.String()
	assert.Contains(t, out, "# source: default")
	assert.NotContains(t, out, "null")

	var doc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "app-task", doc["Family"])
	assert.Equal(t, "256", doc["Cpu"])

	containers, ok := doc["ContainerDefinitions"].([]interface{})
	require.True(t, ok)
	require.Len(t, containers, 1)
	assert.Equal(t, "repo:a1b2c3d", containers[0].(map[string]interface{})["Image"])
}

func TestValidateFormat(t *testing.T) {
	for _, format := range []string{FormatTable, FormatJSON, FormatYAML} {
		assert.NoError(t, validateFormat(format))
	}
	assert.ErrorIs(t, validateFormat("csv"), models.ErrMissingInput)
	assert.Equal(t, 1, release.ExitCode(validateFormat("csv")))
}
