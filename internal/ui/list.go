package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
)

var (
	_ list.Item = taskItem{}
)

// taskItem wraps [models.TaskView] to implement [list.Item].
type taskItem struct {
	task models.TaskView
}

func (i taskItem) FilterValue() string { return i.task.DisplayTitle() }
func (i taskItem) Title() string       { return statusIcon(i.task.Status) + " " + i.task.DisplayTitle() }
func (i taskItem) Description() string {
	v := i.task
	switch v.Status {
	case models.StatusDownloading:
		desc := fmt.Sprintf("%s • %.1f%%", v.ID, v.Progress)
		if v.Speed != "" {
			desc += " • " + v.Speed
		}
		if v.ETA != "" {
			desc += " • ETA " + v.ETA
		}
		return desc
	case models.StatusCompleted:
		return fmt.Sprintf("%s • %s", v.ID, shared.FormatSize(v.OutputSize))
	case models.StatusFailed:
		return fmt.Sprintf("%s • %s", v.ID, v.Error)
	}
	return fmt.Sprintf("%s • %s", v.ID, v.Status)
}

func statusIcon(s models.Status) string {
	switch s {
	case models.StatusCompleted:
		return styles.ok.Render("✓")
	case models.StatusFailed:
		return styles.err.Render("✗")
	case models.StatusDownloading:
		return styles.warn.Render("↓")
	case models.StatusPaused:
		return styles.help.Render("‖")
	}
	return styles.help.Render("·")
}

func toItems(tasks []models.TaskView) []list.Item {
	items := make([]list.Item, len(tasks))
	for i, t := range tasks {
		items[i] = taskItem{task: t}
	}
	return items
}
