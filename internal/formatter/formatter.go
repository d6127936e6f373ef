// package formatter renders task lists and run history as tables, CSV, Markdown, JSON, or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// Format names an output representation.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
)

// ParseFormat accepts a format name or a common alias ("markdown", "text").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, s)
}

// FormatForPath picks a format from a file extension, defaulting to CSV.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt":
		return FormatText
	}
	return FormatCSV
}

func progressCell(v models.TaskView) string {
	switch v.Status {
	case models.StatusCompleted:
		return shared.FormatSize(v.OutputSize)
	case models.StatusDownloading:
		if v.Speed != "" {
			return fmt.Sprintf("%.0f%% %s", v.Progress, v.Speed)
		}
		return fmt.Sprintf("%.0f%%", v.Progress)
	case models.StatusFailed:
		return shared.Truncate(v.Error, 40)
	}
	return ""
}

// ExportToTable renders views as a bordered terminal table.
func ExportToTable(views []models.TaskView) []byte {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "Status", "Title", "Quality", "Progress", "Created")
	for _, v := range views {
		t.Row(
			v.ID,
			string(v.Status),
			shared.Truncate(v.DisplayTitle(), 48),
			v.Quality,
			progressCell(v),
			v.CreatedAt.Local().Format("01-02 15:04"),
		)
	}
	return []byte(t.String() + "\n")
}

// ExportToCSV converts views to CSV with columns: ID, Owner, Status, Title, URL, Quality, Progress, Size, Error, Created
func ExportToCSV(views []models.TaskView) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Owner", "Status", "Title", "URL", "Quality", "Progress", "Size", "Error", "Created"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range views {
		record := []string{
			v.ID,
			v.Owner,
			string(v.Status),
			v.Title,
			v.SourceURL,
			v.Quality,
			fmt.Sprintf("%.1f", v.Progress),
			fmt.Sprintf("%d", v.OutputSize),
			v.Error,
			v.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// StatusCounts tallies views per status.
func StatusCounts(views []models.TaskView) map[models.Status]int {
	counts := make(map[models.Status]int)
	for _, v := range views {
		counts[v.Status]++
	}
	return counts
}

var statusOrder = []models.Status{
	models.StatusDownloading, models.StatusPending, models.StatusPaused, models.StatusCompleted, models.StatusFailed,
}

// ExportToMarkdown converts views to a Markdown report with a status summary.
func ExportToMarkdown(views []models.TaskView, heading string) ([]byte, error) {
	var buf bytes.Buffer
	if heading == "" {
		heading = "Downloads"
	}

	fmt.Fprintf(&buf, "# %s\n\n", heading)
	fmt.Fprintf(&buf, "**Tasks**: %d\n", len(views))
	counts := StatusCounts(views)
	for _, st := range statusOrder {
		if n := counts[st]; n > 0 {
			fmt.Fprintf(&buf, "**%s**: %d\n", strings.ToUpper(st.String()[:1])+st.String()[1:], n)
		}
	}

	buf.WriteString("\n## Tasks\n\n")
	for i, v := range views {
		title := strings.NewReplacer("[", "\\[", "]", "\\]").Replace(v.DisplayTitle())
		fmt.Fprintf(&buf, "%d. [%s](%s) `%s`", i+1, title, v.SourceURL, v.Status)
		switch {
		case v.Status == models.StatusCompleted:
			fmt.Fprintf(&buf, " %s", shared.FormatSize(v.OutputSize))
		case v.Error != "":
			fmt.Fprintf(&buf, " %s", v.Error)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts views to one line per task.
func ExportToText(views []models.TaskView) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Tasks: %d\n\n", len(views))
	for i, v := range views {
		fmt.Fprintf(&buf, "%d. [%s] %s - %s\n", i+1, v.Status, v.DisplayTitle(), v.SourceURL)
	}

	return buf.Bytes(), nil
}

// ExportToJSON marshals views, indented when pretty is set.
func ExportToJSON(views []models.TaskView, pretty bool) ([]byte, error) {
	if views == nil {
		views = []models.TaskView{}
	}
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(views, "", "  ")
	} else {
		data, err = json.Marshal(views)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Export renders views in format.
func Export(views []models.TaskView, format Format) ([]byte, error) {
	switch format {
	case FormatTable:
		return ExportToTable(views), nil
	case FormatJSON:
		return ExportToJSON(views, true)
	case FormatCSV:
		return ExportToCSV(views)
	case FormatMarkdown:
		return ExportToMarkdown(views, "")
	case FormatText:
		return ExportToText(views)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
}

// Render writes views to w in format.
func Render(w io.Writer, views []models.TaskView, format Format) error {
	data, err := Export(views, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteExport writes views to path, choosing the format from its extension.
//
// Defaults to tasks_<timestamp>.csv when path is empty.
func WriteExport(views []models.TaskView, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("tasks_%s.csv", time.Now().Format("20060102_150405"))
	}

	data, err := Export(views, FormatForPath(path))
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// RunsToTable renders history rows as a bordered table.
func RunsToTable(runs []*models.TaskRun) []byte {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Task", "Owner", "Status", "Title", "Size", "Took", "Finished")
	for _, r := range runs {
		took := ""
		if !r.StartedAt.IsZero() && r.FinishedAt.After(r.StartedAt) {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		size := ""
		if r.Status == models.StatusCompleted {
			size = shared.FormatSize(r.OutputSize)
		}
		t.Row(r.TaskID, r.Owner, string(r.Status), shared.Truncate(r.Title, 40), size, took,
			r.FinishedAt.Local().Format("2006-01-02 15:04"))
	}
	return []byte(t.String() + "\n")
}

// RunsToCSV converts history rows to CSV.
func RunsToCSV(runs []*models.TaskRun) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Run", "Task", "Owner", "Status", "Title", "URL", "Size", "Error", "Started", "Finished"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range runs {
		record := []string{
			r.RunID, r.TaskID, r.Owner, string(r.Status), r.Title, r.URL,
			fmt.Sprintf("%d", r.OutputSize), r.Error,
			formatTime(r.StartedAt), formatTime(r.FinishedAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
