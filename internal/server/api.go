package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/desertthunder/tunesync/internal/tasks"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Engine is the part of the orchestrator the API drives.
type Engine interface {
	Status() tasks.Status
	AddPlaylist(ctx context.Context, rawURL, name string) (*tasks.AddResult, error)
	RemovePlaylist(ctx context.Context, playlistID string) error
	TriggerManualScan(ctx context.Context) tasks.ScanTicket
	DrainPending(ctx context.Context, playlistID string) (*tasks.DrainResult, error)
	ValidateFiles(ctx context.Context) (*tasks.ValidationResult, error)
}

// SchedulerState reports whether the periodic scan loop is running.
type SchedulerState interface {
	Running() bool
}

// Settings is the configuration summary returned by the status endpoint.
type Settings struct {
	CheckInterval string `json:"check_interval"`
	DownloadDir   string `json:"download_dir"`
	AudioFormat   string `json:"audio_format"`
	AudioQuality  string `json:"audio_quality"`
	DelayEnabled  bool   `json:"delay_enabled"`
	MaxAttempts   int    `json:"max_attempts"`
}

// SettingsFromConfig summarizes cfg.
func SettingsFromConfig(cfg *shared.Config) Settings {
	return Settings{
		CheckInterval: cfg.Sync.CheckInterval().String(),
		DownloadDir:   cfg.Download.Dir,
		AudioFormat:   cfg.Download.AudioFormat,
		AudioQuality:  cfg.Download.AudioQuality,
		DelayEnabled:  cfg.Download.DelayEnabled,
		MaxAttempts:   cfg.Sync.MaxAttempts,
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Scheduler bool      `json:"scheduler_running"`
	Busy      bool      `json:"busy"`
	Time      time.Time `json:"time"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Engine    tasks.Status        `json:"engine"`
	Scheduler bool                `json:"scheduler_running"`
	Totals    models.StatusCounts `json:"totals"`
	Playlists int                 `json:"playlists"`
	Recent    []*models.Track     `json:"recent"`
	Settings  Settings            `json:"settings"`
}

// PlaylistTracks is the body of GET /api/playlists/{id}/tracks.
type PlaylistTracks struct {
	Playlist *models.Playlist    `json:"playlist"`
	Counts   models.StatusCounts `json:"counts"`
	Tracks   []*models.Track     `json:"tracks"`
}

// AddPlaylistRequest is the body of POST /api/playlists.
type AddPlaylistRequest struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
}

// ScanResponse is the body of POST /api/check-now.
type ScanResponse struct {
	tasks.ScanTicket
	Error string `json:"error,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// API serves the daemon's JSON endpoints.
type API struct {
	engine    Engine
	catalog   *repositories.Catalog
	scheduler SchedulerState
	settings  Settings
	logger    *log.Logger
	mux       *http.ServeMux
}

// NewAPI creates the API handler. scheduler may be nil when no loop runs.
func NewAPI(engine Engine, catalog *repositories.Catalog, scheduler SchedulerState, settings Settings, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	a := &API{engine: engine, catalog: catalog, scheduler: scheduler, settings: settings, logger: logger, mux: http.NewServeMux()}

	a.mux.HandleFunc("GET /health", a.health)
	a.mux.HandleFunc("GET /api/status", a.status)
	a.mux.HandleFunc("GET /api/playlists", a.listPlaylists)
	a.mux.HandleFunc("POST /api/playlists", a.addPlaylist)
	a.mux.HandleFunc("DELETE /api/playlists/{id}", a.removePlaylist)
	a.mux.HandleFunc("GET /api/playlists/{id}/tracks", a.playlistTracks)
	a.mux.HandleFunc("POST /api/playlists/{id}/drain", a.drainPlaylist)
	a.mux.HandleFunc("POST /api/check-now", a.checkNow)
	a.mux.HandleFunc("GET /api/downloads", a.downloads)
	a.mux.HandleFunc("POST /api/validate", a.validate)
	a.mux.HandleFunc("GET /api/log", a.actionLog)
	return a
}

// Routes returns the patterns served by the API.
func (a *API) Routes() []string {
	return []string{
		"/health",
		"/api/status",
		"/api/playlists",
		"/api/playlists/{id}",
		"/api/playlists/{id}/tracks",
		"/api/playlists/{id}/drain",
		"/api/check-now",
		"/api/downloads",
		"/api/validate",
		"/api/log",
	}
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) schedulerRunning() bool {
	return a.scheduler != nil && a.scheduler.Running()
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Scheduler: a.schedulerRunning(),
		Busy:      a.engine.Status().Busy,
		Time:      time.Now().UTC(),
	})
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	totals, err := a.catalog.Tracks.Counts("")
	if err != nil {
		a.fail(w, err)
		return
	}
	playlists, err := a.catalog.Playlists.List(true)
	if err != nil {
		a.fail(w, err)
		return
	}
	recent, err := a.catalog.Tracks.Recent(10)
	if err != nil {
		a.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Engine:    a.engine.Status(),
		Scheduler: a.schedulerRunning(),
		Totals:    totals,
		Playlists: len(playlists),
		Recent:    nonNil(recent),
		Settings:  a.settings,
	})
}

func (a *API) listPlaylists(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.catalog.Playlists.Summaries(true)
	if err != nil {
		a.fail(w, err)
		return
	}
	if summaries == nil {
		summaries = []models.PlaylistSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// addPlaylist answers 202 whether the import started or was deferred; the body says which.
func (a *API) addPlaylist(w http.ResponseWriter, r *http.Request) {
	var req AddPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}

	res, err := a.engine.AddPlaylist(r.Context(), req.URL, req.Name)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (a *API) removePlaylist(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.engine.RemovePlaylist(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": id})
}

func (a *API) playlistTracks(w http.ResponseWriter, r *http.Request) {
	p, err := a.catalog.Playlists.Get(r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	tracks, err := a.catalog.Tracks.ListByPlaylist(p.ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	counts, err := a.catalog.Tracks.Counts(p.ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PlaylistTracks{Playlist: p, Counts: counts, Tracks: nonNil(tracks)})
}

// drainPlaylist drains synchronously. A client that disconnects stops the drain between tracks.
func (a *API) drainPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := a.catalog.Playlists.Get(r.PathValue("id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.engine.DrainPending(r.Context(), p.ID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) checkNow(w http.ResponseWriter, r *http.Request) {
	ticket := a.engine.TriggerManualScan(r.Context())
	if !ticket.Accepted {
		writeJSON(w, http.StatusConflict, ScanResponse{ScanTicket: ticket, Error: ticket.Reason})
		return
	}
	writeJSON(w, http.StatusAccepted, ScanResponse{ScanTicket: ticket})
}

func (a *API) downloads(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	tracks, err := a.catalog.Tracks.Recent(limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tracks))
}

func (a *API) validate(w http.ResponseWriter, r *http.Request) {
	res, err := a.engine.ValidateFiles(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) actionLog(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	entries, err := a.catalog.Actions.Recent(limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	if entries == nil {
		entries = []models.ActionLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) fail(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

// StatusCode maps an engine or catalog error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, shared.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidPlaylistURL),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrPlaylistNotFound), errors.Is(err, shared.ErrTrackNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", shared.ErrInvalidArgument)
	}
	return min(n, maxLimit), nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func nonNil(tracks []*models.Track) []*models.Track {
	if tracks == nil {
		return []*models.Track{}
	}
	return tracks
}
