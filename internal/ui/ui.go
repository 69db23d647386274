package ui

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/services"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DashboardView ViewState = iota
	TracksView
	LogView
	ConfirmView
)

const logLimit = 30

// Client is the part of [services.APIService] the dashboard uses.
type Client interface {
	GetInto(ctx context.Context, path string, v any) error
	Post(ctx context.Context, path string, data []byte) (*services.APIResponse, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx       context.Context
	client    Client
	interval  time.Duration
	view      ViewState
	width     int
	height    int
	status    *server.StatusResponse
	playlists list.Model
	tracks    list.Model
	selected  string
	actions   []models.ActionLogEntry
	notice    string
	err       error
	help      help.Model
	keys      keyMap
}

// NewModel creates a dashboard that refreshes every interval (5s when non-positive).
func NewModel(ctx context.Context, client Client, interval time.Duration) *Model {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	playlists := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	playlists.Title = "Playlists"
	playlists.SetShowHelp(false)

	tracks := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	tracks.SetShowHelp(false)

	return &Model{
		ctx:       ctx,
		client:    client,
		interval:  interval,
		view:      DashboardView,
		playlists: playlists,
		tracks:    tracks,
		help:      help.New(),
		keys:      newKeyMap(),
	}
}

// Init fetches the first status and playlists and starts the refresh ticker.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus(), m.fetchPlaylists(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlists.SetSize(msg.Width-4, msg.Height-12)
		m.tracks.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case DashboardView:
			return m.handleDashboardKeys(msg)
		case TracksView:
			return m.handleTracksKeys(msg)
		case LogView:
			return m.handleLogKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgTick:
		cmds := []tea.Cmd{m.fetchStatus(), m.tick()}
		switch m.view {
		case DashboardView:
			cmds = append(cmds, m.fetchPlaylists())
		case TracksView:
			cmds = append(cmds, m.fetchTracks(m.selected))
		case LogView:
			cmds = append(cmds, m.fetchLog())
		}
		return m, tea.Batch(cmds...)

	case MsgStatusFetched:
		p := msg.data.(statusPayload)
		m.err = p.err
		if p.err == nil {
			m.status = p.status
		}
		return m, nil

	case MsgPlaylistsFetched:
		p := msg.data.(playlistsPayload)
		if p.err != nil {
			m.err = p.err
			return m, nil
		}
		items := make([]list.Item, len(p.playlists))
		for i, s := range p.playlists {
			items[i] = playlistItem{summary: s}
		}
		return m, m.playlists.SetItems(items)

	case MsgTracksFetched:
		p := msg.data.(tracksPayload)
		if p.err != nil {
			m.err = p.err
			m.view = DashboardView
			return m, nil
		}
		items := make([]list.Item, len(p.tracks.Tracks))
		for i, t := range p.tracks.Tracks {
			items[i] = trackItem{track: t}
		}
		m.tracks.Title = fmt.Sprintf("Tracks in '%s'", playlistItem{summary: models.PlaylistSummary{Playlist: *p.tracks.Playlist}}.name())
		m.selected = p.tracks.Playlist.ID
		m.view = TracksView
		return m, m.tracks.SetItems(items)

	case MsgLogFetched:
		p := msg.data.(logPayload)
		if p.err != nil {
			m.err = p.err
			return m, nil
		}
		m.actions = p.entries
		m.view = LogView
		return m, nil

	case MsgScanTriggered:
		p := msg.data.(scanPayload)
		switch {
		case p.err != nil:
			m.notice = styles.err.Render(fmt.Sprintf("Scan request failed: %v", p.err))
		case p.response.Accepted:
			m.notice = styles.ok.Render(fmt.Sprintf("Scan started (run %s)", p.response.RunID))
		default:
			m.notice = styles.warn.Render("Scan rejected: " + p.response.Reason)
		}
		return m, m.fetchStatus()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case DashboardView:
		return m.renderDashboard()
	case TracksView:
		return m.renderTracks()
	case LogView:
		return m.renderLog()
	case ConfirmView:
		return m.renderConfirm()
	default:
		return ""
	}
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.playlists.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if pl, ok := m.playlists.SelectedItem().(playlistItem); ok {
			return m, m.fetchTracks(pl.summary.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.scan):
		m.view = ConfirmView
		return m, nil
	case key.Matches(msg, m.keys.log):
		return m, m.fetchLog()
	case key.Matches(msg, m.keys.refresh):
		m.notice = ""
		return m, tea.Batch(m.fetchStatus(), m.fetchPlaylists())
	}
	return m.updateLists(msg)
}

func (m *Model) handleTracksKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.tracks.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = DashboardView
		m.selected = ""
		return m, m.fetchPlaylists()
	}
	return m.updateLists(msg)
}

func (m *Model) handleLogKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = DashboardView
		return m, nil
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchLog()
	}
	return m, nil
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = DashboardView
		return m, m.triggerScan()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = DashboardView
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case DashboardView:
		m.playlists, cmd = m.playlists.Update(msg)
	case TracksView:
		m.tracks, cmd = m.tracks.Update(msg)
	}
	return m, cmd
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		var status server.StatusResponse
		if err := m.client.GetInto(m.ctx, "/api/status", &status); err != nil {
			return statusFetchedMsg(nil, err)
		}
		return statusFetchedMsg(&status, nil)
	}
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		var playlists []models.PlaylistSummary
		err := m.client.GetInto(m.ctx, "/api/playlists", &playlists)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) fetchTracks(playlistID string) tea.Cmd {
	return func() tea.Msg {
		var tracks server.PlaylistTracks
		if err := m.client.GetInto(m.ctx, "/api/playlists/"+playlistID+"/tracks", &tracks); err != nil {
			return tracksFetchedMsg(nil, err)
		}
		return tracksFetchedMsg(&tracks, nil)
	}
}

func (m *Model) fetchLog() tea.Cmd {
	return func() tea.Msg {
		var entries []models.ActionLogEntry
		err := m.client.GetInto(m.ctx, fmt.Sprintf("/api/log?limit=%d", logLimit), &entries)
		return logFetchedMsg(entries, err)
	}
}

// triggerScan reads 409 as a rejection, not as an error.
func (m *Model) triggerScan() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Post(m.ctx, "/api/check-now", nil)
		if err != nil {
			return scanTriggeredMsg(nil, err)
		}
		if !resp.OK() && resp.StatusCode != http.StatusConflict {
			return scanTriggeredMsg(nil, fmt.Errorf("%s (status %d)", resp.ErrorMessage(), resp.StatusCode))
		}

		var body server.ScanResponse
		if err := resp.Decode(&body); err != nil {
			return scanTriggeredMsg(nil, err)
		}
		return scanTriggeredMsg(&body, nil)
	}
}

func (m *Model) renderHeader() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("tunesync"))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Daemon unreachable: %v", m.err)))
		b.WriteString("\n")
	}
	if m.status == nil {
		b.WriteString(styles.help.Render("Waiting for status..."))
		return b.String()
	}

	engine := m.status.Engine
	state := styles.ok.Render("idle")
	if engine.Busy {
		state = styles.warn.Render(engine.Operation)
		if engine.Subject != "" {
			state += " " + styles.help.Render(engine.Subject)
		}
	}
	fmt.Fprintf(&b, "State: %s", state)
	if !m.status.Scheduler {
		b.WriteString(styles.warn.Render("  (scheduler stopped)"))
	}
	b.WriteString("\n")
	if engine.Activity != "" {
		fmt.Fprintf(&b, "Activity: %s\n", engine.Activity)
	}

	t := m.status.Totals
	fmt.Fprintf(&b, "Tracks: %d total • %s • %d pending • %s • %s\n",
		t.Total,
		styles.ok.Render(fmt.Sprintf("%d downloaded", t.Downloaded+t.Duplicate)),
		t.Pending+t.Processing,
		styles.err.Render(fmt.Sprintf("%d failed", t.Failed)),
		styles.warn.Render(fmt.Sprintf("%d restricted", t.Restricted)),
	)

	if last := engine.LastScan; last != nil {
		fmt.Fprintf(&b, "Last scan: %s (%s) • %d downloaded • %d errors\n",
			last.FinishedAt.Local().Format("Jan 2 15:04"), last.Operation, last.Totals.Downloaded, last.Errors)
	}
	fmt.Fprintf(&b, "Every %s into %s", m.status.Settings.CheckInterval, m.status.Settings.DownloadDir)
	return b.String()
}

func (m *Model) renderDashboard() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.scan, m.keys.log, m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	notice := ""
	if m.notice != "" {
		notice = "\n" + m.notice + "\n"
	}
	return fmt.Sprintf("%s\n%s\n%s\n\n%s", m.renderHeader(), notice, m.playlists.View(), helpView)
}

func (m *Model) renderTracks() string {
	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.tracks.View(), helpView)
}

func (m *Model) renderLog() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Recent activity"))
	b.WriteString("\n")

	if len(m.actions) == 0 {
		b.WriteString(styles.help.Render("Nothing logged yet"))
	}
	for _, e := range m.actions {
		line := fmt.Sprintf("%s  %-16s %s", e.CreatedAt.Local().Format("15:04:05"), e.Action, e.TrackID)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		switch {
		case e.Error != "":
			b.WriteString(styles.err.Render(line + "  " + e.Error))
		case e.Action == models.ActionDownloaded:
			b.WriteString(styles.ok.Render(line))
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}

	helpKeys := []key.Binding{m.keys.refresh, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n%s", b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Start a manual scan now?")
	info := "\nEvery active playlist is reconciled and its pending tracks downloaded.\n" +
		"The request is rejected if another scan or import is running.\n"

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}
