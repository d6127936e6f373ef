package tasks

import (
	"fmt"

	"github.com/desertthunder/videofetcher/internal/models"
	"github.com/desertthunder/videofetcher/internal/shared"
)

// ProgressUpdate represents a lifecycle event for a single task run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	TaskID  string // Task the event belongs to
	Phase   Phase  // Run phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data (task snapshot, metadata)
}

// Run phase enumeration
type Phase int

const (
	Queued Phase = iota
	Probing
	Downloading
	Resolving
	Retrying
	Completed
	Failed
	Paused
)

func (p Phase) String() string {
	switch p {
	case Queued:
		return "queued"
	case Probing:
		return "probing"
	case Downloading:
		return "downloading"
	case Resolving:
		return "resolving"
	case Retrying:
		return "retrying"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Paused:
		return "paused"
	default:
		return ""
	}
}

// Terminal reports whether the phase ends a run.
func (p Phase) Terminal() bool {
	return p == Completed || p == Failed || p == Paused
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func queuedUpdate(id, url string) ProgressUpdate {
	return ProgressUpdate{
		TaskID:  id,
		Phase:   Queued,
		Message: fmt.Sprintf("Queued %s", url),
	}
}

func probingUpdate(id string, step, total int, net models.NetworkConfig) ProgressUpdate {
	return ProgressUpdate{
		TaskID:  id,
		Phase:   Probing,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Probing with %s...", step, total, net.Label()),
	}
}

func downloadingUpdate(id string, pct float64, speed, eta string) ProgressUpdate {
	msg := fmt.Sprintf("%5.1f%%", pct)
	if speed != "" {
		msg += " " + speed
	}
	if eta != "" {
		msg += " ETA " + eta
	}
	return ProgressUpdate{
		TaskID:  id,
		Phase:   Downloading,
		Step:    int(pct),
		Total:   100,
		Message: msg,
	}
}

func resolvingUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		TaskID:  id,
		Phase:   Resolving,
		Message: "Locating downloaded file...",
	}
}

func retryingUpdate(id string) ProgressUpdate {
	return ProgressUpdate{
		TaskID:  id,
		Phase:   Retrying,
		Message: "No output found, downloading again without the archive...",
	}
}

func finishedUpdate(v models.TaskView) ProgressUpdate {
	u := ProgressUpdate{TaskID: v.ID, Data: v}
	switch v.Status {
	case models.StatusCompleted:
		u.Phase = Completed
		u.Message = fmt.Sprintf("✓ %s (%s)", v.DisplayTitle(), shared.FormatSize(v.OutputSize))
	case models.StatusPaused:
		u.Phase = Paused
		u.Message = fmt.Sprintf("Paused %s", v.DisplayTitle())
	default:
		u.Phase = Failed
		u.Message = fmt.Sprintf("✗ %s: %s", v.DisplayTitle(), v.Error)
	}
	return u
}
