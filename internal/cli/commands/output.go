package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/alvesdmateus/ecs-deployer/internal/catalog"
	"github.com/alvesdmateus/ecs-deployer/internal/release"
	"github.com/alvesdmateus/ecs-deployer/internal/taskdef"
	"github.com/alvesdmateus/ecs-deployer/pkg/models"
)

// Output formats accepted by -o
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	warningStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E5C07B"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#98C379"))
)

func validateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	default:
		return models.Wrap(models.ErrMissingInput, "output format",
			fmt.Errorf("unsupported format %q (want table, json or yaml)", format))
	}
}

// writeStructured encodes v as JSON or YAML
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return validateFormat(format)
	}
}

// printVersions renders the version catalog, oldest first
func printVersions(w io.Writer, format string, versions []catalog.Version) error {
	if format != FormatTable {
		if versions == nil {
			versions = []catalog.Version{}
		}
		return writeStructured(w, format, versions)
	}

	if len(versions) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("No versions found."))
		return err
	}

	rows := make([][]string, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, []string{
			v.Tag,
			formatTime(v.PushedAt),
			shortDigest(v.Digest),
			strings.Join(v.Tags, ", "),
		})
	}

	_, err := fmt.Fprintln(w, renderTable([]string{"TAG", "PUSHED", "DIGEST", "TAGS"}, rows))
	return err
}

// printEvents renders release journal entries, oldest first
func printEvents(w io.Writer, format string, events []models.ReleaseEvent) error {
	if format != FormatTable {
		if events == nil {
			events = []models.ReleaseEvent{}
		}
		return writeStructured(w, format, events)
	}

	if len(events) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("No release events recorded."))
		return err
	}

	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			formatTime(e.CreatedAt),
			string(e.Action),
			e.Identifier,
			string(e.Outcome),
			e.TaskDefinition,
		})
	}

	_, err := fmt.Fprintln(w, renderTable([]string{"WHEN", "ACTION", "VERSION", "OUTCOME", "TASK DEFINITION"}, rows))
	return err
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		Render()
}

// printResult writes the workflow summary
func printResult(w io.Writer, result *release.Result) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", successStyle.Render(string(result.Action)), result.Identifier)
	fmt.Fprintf(&b, "  image:           %s\n", result.ImageRef)
	if result.TaskDefinition != "" {
		fmt.Fprintf(&b, "  task definition: %s\n", result.TaskDefinition)
	}
	if result.Outcome != models.OutcomeNone {
		fmt.Fprintf(&b, "  outcome:         %s\n", result.Outcome)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(&b, "%s %s\n", warningStyle.Render("warning:"), warning)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// printSpec writes the task definition a release would register, as YAML
func printSpec(w io.Writer, spec *taskdef.Spec) error {
	data, err := json.Marshal(spec.Input)
	if err != nil {
		return fmt.Errorf("encode task definition: %w", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode task definition: %w", err)
	}

	header := fmt.Sprintf("# source: %s", spec.Source)
	if spec.PreviousArn != "" {
		header += fmt.Sprintf(" (%s)", spec.PreviousArn)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	return writeStructured(w, FormatYAML, prune(doc))
}

// prune drops null values and empty collections so only set fields are shown
func prune(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			item = prune(item)
			if isEmpty(item) {
				continue
			}
			out[k] = item
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, item := range val {
			out = append(out, prune(item))
		}
		return out
	default:
		return v
	}
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case map[string]interface{}:
		return len(val) == 0
	case []interface{}:
		return len(val) == 0
	case string:
		return val == ""
	default:
		return false
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortDigest(digest string) string {
	const keep = len("sha256:") + 12
	if len(digest) > keep {
		return digest[:keep]
	}
	return digest
}
