package ui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/server"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
)

type fakeClient struct {
	responses map[string]any
	errs      map[string]error
	post      *services.APIResponse
	posts     []string
}

func (f *fakeClient) GetInto(ctx context.Context, path string, v any) error {
	if err := f.errs[path]; err != nil {
		return err
	}
	body, ok := f.responses[path]
	if !ok {
		return shared.ErrAPIRequest
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (f *fakeClient) Post(ctx context.Context, path string, data []byte) (*services.APIResponse, error) {
	f.posts = append(f.posts, path)
	if f.post == nil {
		return nil, shared.ErrServiceUnavailable
	}
	return f.post, nil
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func jsonResponse(t *testing.T, code int, v any) *services.APIResponse {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return &services.APIResponse{StatusCode: code, Body: data, IsJSON: true}
}

func newFixture() *fakeClient {
	playlist := models.Playlist{ID: "p1", SourceURL: "https://www.youtube.com/playlist?list=PL1", DisplayName: "Road Trip", Active: true}
	return &fakeClient{
		responses: map[string]any{
			"/api/status": server.StatusResponse{
				Engine:    tasks.Status{Snapshot: tasks.Snapshot{Operation: "manual scan", Busy: true, Activity: "Downloading 2/5: Song"}},
				Scheduler: true,
				Totals:    models.StatusCounts{Total: 5, Downloaded: 2, Pending: 2, Failed: 1},
				Settings:  server.Settings{CheckInterval: "1h0m0s", DownloadDir: "/music"},
			},
			"/api/playlists": []models.PlaylistSummary{
				{Playlist: playlist, Counts: models.StatusCounts{Total: 5, Downloaded: 2, Pending: 2, Failed: 1}},
			},
			"/api/playlists/p1/tracks": server.PlaylistTracks{
				Playlist: &playlist,
				Tracks: []*models.Track{
					{ID: "a", Title: "Song A", Status: models.StatusDownloaded},
					{ID: "b", Title: "Song B", Status: models.StatusFailed, LastError: "HTTP 503"},
				},
			},
			"/api/log?limit=30": []models.ActionLogEntry{
				{TrackID: "a", Action: models.ActionDownloaded, Detail: "/music/a.mp3", CreatedAt: time.Now()},
				{TrackID: "b", Action: models.ActionFailed, Error: "HTTP 503", CreatedAt: time.Now()},
			},
		},
		errs: map[string]error{},
	}
}

// run executes cmd and feeds the resulting message back into m.
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	m.Update(cmd())
}

func TestModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Dashboard", func(t *testing.T) {
		client := newFixture()
		m := NewModel(ctx, client, time.Second)
		m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

		run(t, m, m.fetchStatus())
		run(t, m, m.fetchPlaylists())

		view := m.View()
		for _, want := range []string{"manual scan", "Downloading 2/5", "5 total", "Road Trip", "/music"} {
			if !strings.Contains(view, want) {
				t.Errorf("dashboard should contain %q", want)
			}
		}
	})

	t.Run("Unreachable Daemon", func(t *testing.T) {
		client := newFixture()
		client.errs["/api/status"] = shared.ErrServiceUnavailable
		m := NewModel(ctx, client, 0)

		run(t, m, m.fetchStatus())
		if !strings.Contains(m.View(), "Daemon unreachable") {
			t.Error("expected unreachable notice")
		}
		if m.interval != 5*time.Second {
			t.Errorf("expected default interval, got %v", m.interval)
		}
	})

	t.Run("Tracks View", func(t *testing.T) {
		client := newFixture()
		m := NewModel(ctx, client, time.Second)
		m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
		run(t, m, m.fetchPlaylists())

		_, cmd := m.Update(keyPress("enter"))
		run(t, m, cmd)

		if m.view != TracksView || m.selected != "p1" {
			t.Fatalf("expected tracks view for p1, got view %d selected %q", m.view, m.selected)
		}
		view := m.View()
		if !strings.Contains(view, "Road Trip") || !strings.Contains(view, "Song A") {
			t.Errorf("unexpected tracks view:\n%s", view)
		}

		m.Update(keyPress("esc"))
		if m.view != DashboardView || m.selected != "" {
			t.Error("esc should return to the dashboard")
		}
	})

	t.Run("Tracks Error Returns To Dashboard", func(t *testing.T) {
		client := newFixture()
		client.errs["/api/playlists/p1/tracks"] = errors.New("boom")
		m := NewModel(ctx, client, time.Second)

		run(t, m, m.fetchTracks("p1"))
		if m.view != DashboardView || m.err == nil {
			t.Error("expected dashboard with error")
		}
	})

	t.Run("Log View", func(t *testing.T) {
		m := NewModel(ctx, newFixture(), time.Second)

		_, cmd := m.Update(keyPress("l"))
		run(t, m, cmd)

		if m.view != LogView {
			t.Fatalf("expected log view, got %d", m.view)
		}
		view := m.View()
		if !strings.Contains(view, "/music/a.mp3") || !strings.Contains(view, "HTTP 503") {
			t.Errorf("unexpected log view:\n%s", view)
		}
	})

	t.Run("Scan Accepted", func(t *testing.T) {
		client := newFixture()
		client.post = jsonResponse(t, http.StatusAccepted, server.ScanResponse{ScanTicket: tasks.ScanTicket{Accepted: true, RunID: "run-7"}})
		m := NewModel(ctx, client, time.Second)

		m.Update(keyPress("s"))
		if m.view != ConfirmView || !strings.Contains(m.View(), "manual scan") {
			t.Fatal("expected confirmation")
		}

		_, cmd := m.Update(keyPress("y"))
		run(t, m, cmd)

		if len(client.posts) != 1 || client.posts[0] != "/api/check-now" {
			t.Errorf("expected one check-now request, got %v", client.posts)
		}
		if m.view != DashboardView || !strings.Contains(m.notice, "run-7") {
			t.Errorf("expected notice with run id, got %q", m.notice)
		}
	})

	t.Run("Scan Rejected", func(t *testing.T) {
		client := newFixture()
		client.post = jsonResponse(t, http.StatusConflict, server.ScanResponse{
			ScanTicket: tasks.ScanTicket{Reason: "import in progress since 2026-10-17T10:00:00Z"},
			Error:      "import in progress since 2026-10-17T10:00:00Z",
		})
		m := NewModel(ctx, client, time.Second)

		m.Update(keyPress("s"))
		_, cmd := m.Update(keyPress("y"))
		run(t, m, cmd)

		if !strings.Contains(m.notice, "Scan rejected: import in progress") {
			t.Errorf("expected rejection notice, got %q", m.notice)
		}
	})

	t.Run("Scan Cancelled", func(t *testing.T) {
		client := newFixture()
		m := NewModel(ctx, client, time.Second)

		m.Update(keyPress("s"))
		_, cmd := m.Update(keyPress("n"))
		if cmd != nil || m.view != DashboardView || len(client.posts) != 0 {
			t.Error("n should cancel without a request")
		}
	})

	t.Run("Quit", func(t *testing.T) {
		m := NewModel(ctx, newFixture(), time.Second)
		_, cmd := m.Update(keyPress("q"))
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected tea.QuitMsg")
		}
	})
}
