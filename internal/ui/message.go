package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/server"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTick MsgKind = iota
	MsgStatusFetched
	MsgPlaylistsFetched
	MsgTracksFetched
	MsgLogFetched
	MsgScanTriggered
)

type statusPayload struct {
	status *server.StatusResponse
	err    error
}

type playlistsPayload struct {
	playlists []models.PlaylistSummary
	err       error
}

type tracksPayload struct {
	tracks *server.PlaylistTracks
	err    error
}

type logPayload struct {
	entries []models.ActionLogEntry
	err     error
}

type scanPayload struct {
	response *server.ScanResponse
	err      error
}

// tickMsg is the constructor for [MsgTick]
func tickMsg(t time.Time) Msg {
	return Msg{kind: MsgTick, data: t}
}

// statusFetchedMsg is the constructor for [MsgStatusFetched]
func statusFetchedMsg(status *server.StatusResponse, err error) Msg {
	return Msg{kind: MsgStatusFetched, data: statusPayload{status, err}}
}

// playlistsFetchedMsg is the constructor for [MsgPlaylistsFetched]
func playlistsFetchedMsg(playlists []models.PlaylistSummary, err error) Msg {
	return Msg{kind: MsgPlaylistsFetched, data: playlistsPayload{playlists, err}}
}

// tracksFetchedMsg is the constructor for [MsgTracksFetched]
func tracksFetchedMsg(tracks *server.PlaylistTracks, err error) Msg {
	return Msg{kind: MsgTracksFetched, data: tracksPayload{tracks, err}}
}

// logFetchedMsg is the constructor for [MsgLogFetched]
func logFetchedMsg(entries []models.ActionLogEntry, err error) Msg {
	return Msg{kind: MsgLogFetched, data: logPayload{entries, err}}
}

// scanTriggeredMsg is the constructor for [MsgScanTriggered]
func scanTriggeredMsg(response *server.ScanResponse, err error) Msg {
	return Msg{kind: MsgScanTriggered, data: scanPayload{response, err}}
}
