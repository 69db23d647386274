package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/tunesync/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

// Status picks the style of a track status: settled states are green, failures red,
// restricted orange and the rest muted.
func (p *Palette) Status(s models.TrackStatus) lipgloss.Style {
	switch s {
	case models.StatusDownloaded, models.StatusDuplicate:
		return p.ok
	case models.StatusFailed:
		return p.err
	case models.StatusRestricted:
		return p.warn
	default:
		return p.help
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
