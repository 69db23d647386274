package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tunesync/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.PlaylistSummary] to implement [list.Item].
type playlistItem struct {
	summary models.PlaylistSummary
}

func (i playlistItem) name() string {
	if i.summary.DisplayName != "" {
		return i.summary.DisplayName
	}
	return i.summary.SourceURL
}

func (i playlistItem) FilterValue() string { return i.name() }
func (i playlistItem) Title() string       { return i.name() }
func (i playlistItem) Description() string {
	c := i.summary.Counts
	desc := fmt.Sprintf("%d tracks • %d downloaded • %d pending", c.Total, c.Downloaded+c.Duplicate, c.Pending+c.Processing)
	if c.Failed > 0 {
		desc = fmt.Sprintf("%s • %d failed", desc, c.Failed)
	}
	if c.Restricted > 0 {
		desc = fmt.Sprintf("%s • %d restricted", desc, c.Restricted)
	}
	return desc
}

// trackItem wraps [models.Track] to implement [list.Item].
type trackItem struct {
	track *models.Track
}

func (i trackItem) FilterValue() string { return i.track.Title }
func (i trackItem) Title() string {
	if i.track.Title == "" {
		return i.track.ID
	}
	return i.track.Title
}

func (i trackItem) Description() string {
	parts := []string{styles.Status(i.track.Status).Render(string(i.track.Status))}
	if artist := i.track.Metadata.Artist; artist != "" {
		parts = append(parts, artist)
	} else if i.track.Uploader != "" {
		parts = append(parts, i.track.Uploader)
	}
	if i.track.LastError != "" && i.track.Status == models.StatusFailed {
		parts = append(parts, i.track.LastError)
	}
	return strings.Join(parts, " • ")
}
