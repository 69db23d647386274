package tasks

import (
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Validate Phase = iota
	Reconcile
	Upsert
	Download
	Recover
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case Validate:
		return "validate"
	case Reconcile:
		return "reconcile"
	case Upsert:
		return "upsert"
	case Download:
		return "download"
	case Recover:
		return "recover"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func validateUpdate(checked, missing int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Validate,
		Step:    checked,
		Total:   checked,
		Message: fmt.Sprintf("Validated %d files (%d missing)", checked, missing),
	}
}

func reconcileUpdate(step, total int, p *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Reconcile,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Checking playlist %s...", step, total, playlistLabel(p)),
		Data:    p,
	}
}

func upsertUpdate(p *models.Playlist, entries, inserted, requeued int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Upsert,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("%s: %d entries, %d new, %d re-queued", playlistLabel(p), entries, inserted, requeued),
	}
}

func downloadUpdate(step, total int, t *models.Track) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Download,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Downloading %s", step, total, trackLabel(t)),
		Data:    t.ID,
	}
}

func downloadDoneUpdate(step, total int, t *models.Track, status models.TrackStatus) ProgressUpdate {
	mark := "✓"
	if status != models.StatusDownloaded && status != models.StatusDuplicate {
		mark = "✗"
	}
	return ProgressUpdate{
		Phase:   Download,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s (%s)", step, total, mark, trackLabel(t), status),
	}
}

func recoverUpdate(reset int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Recover,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Recovered %d interrupted tracks", reset),
	}
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Exporting: %s...", step, total, name),
	}
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%d files)", step, total, name, filesCount),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}

func playlistLabel(p *models.Playlist) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.SourceURL
}

func trackLabel(t *models.Track) string {
	if t.Uploader != "" {
		return fmt.Sprintf("%s - %s", t.Uploader, t.Title)
	}
	if t.Title != "" {
		return t.Title
	}
	return t.ID
}
