// package tasks implements the sync engine: scans, imports, drains, validation and startup recovery.
package tasks

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/reconcile"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
)

// Reconciler produces the authoritative entry list of a playlist.
type Reconciler interface {
	Reconcile(ctx context.Context, url string) (*reconcile.Result, error)
}

// Recorder receives engine events for metrics.
type Recorder interface {
	TrackFinished(status models.TrackStatus)
	ScanFinished(op string, d time.Duration, failed bool)
	Rejected(op string)
	Demoted(n int)
}

type nopRecorder struct{}

func (nopRecorder) TrackFinished(models.TrackStatus)        {}
func (nopRecorder) ScanFinished(string, time.Duration, bool) {}
func (nopRecorder) Rejected(string)                          {}
func (nopRecorder) Demoted(int)                              {}

// Options configures an [Orchestrator].
type Options struct {
	MaxAttempts  int // failed tracks are re-queued while attempts < MaxAttempts; 0 means always
	DelayEnabled bool
	DelayMin     time.Duration
	DelayMax     time.Duration

	// BaseContext is the parent of background scans and imports. It is canceled on shutdown.
	BaseContext context.Context
	Progress    chan<- ProgressUpdate
	Recorder    Recorder
	Logger      *log.Logger
}

// OptionsFromConfig maps the sync and download sections of the configuration.
func OptionsFromConfig(cfg *shared.Config) Options {
	return Options{
		MaxAttempts:  cfg.Sync.MaxAttempts,
		DelayEnabled: cfg.Download.DelayEnabled,
		DelayMin:     time.Duration(cfg.Download.DelayMinSeconds) * time.Second,
		DelayMax:     time.Duration(cfg.Download.DelayMaxSeconds) * time.Second,
	}
}

// DrainResult counts the outcomes of one drain.
type DrainResult struct {
	Attempted  int `json:"attempted"`
	Downloaded int `json:"downloaded"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Restricted int `json:"restricted"`
	Skipped    int `json:"skipped"`
}

// Add accumulates other into d.
func (d *DrainResult) Add(other *DrainResult) {
	if other == nil {
		return
	}
	d.Attempted += other.Attempted
	d.Downloaded += other.Downloaded
	d.Duplicates += other.Duplicates
	d.Failed += other.Failed
	d.Restricted += other.Restricted
	d.Skipped += other.Skipped
}

func (d *DrainResult) record(status models.TrackStatus) {
	switch status {
	case models.StatusDownloaded:
		d.Downloaded++
	case models.StatusDuplicate:
		d.Duplicates++
	case models.StatusFailed:
		d.Failed++
	case models.StatusRestricted:
		d.Restricted++
	default:
		d.Skipped++
		return
	}
	d.Attempted++
}

// PlaylistScan is the outcome of syncing one playlist.
type PlaylistScan struct {
	PlaylistID string       `json:"playlist_id"`
	URL        string       `json:"url"`
	Title      string       `json:"title,omitempty"`
	Entries    int          `json:"entries"`
	New        int          `json:"new"`
	Requeued   int          `json:"requeued"`
	Excluded   int          `json:"excluded"`
	Drain      *DrainResult `json:"drain,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// ScanResult is the outcome of one scheduled or manual scan.
type ScanResult struct {
	RunID      string            `json:"run_id"`
	Operation  string            `json:"operation"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Playlists  []PlaylistScan    `json:"playlists"`
	Totals     DrainResult       `json:"totals"`
	Errors     int               `json:"errors"`
	Canceled   bool              `json:"canceled,omitempty"`
}

// ImportResult reports the initial import of one playlist.
type ImportResult struct {
	PlaylistID string `json:"playlist_id"`
	Title      string `json:"title,omitempty"`
	Total      int    `json:"total"`
	New        int    `json:"new"`
	Downloaded int    `json:"downloaded"`
	Duplicates int    `json:"duplicates"`
	Failed     int    `json:"failed"`
	Restricted int    `json:"restricted"`
	Skipped    int    `json:"skipped"`
	Excluded   int    `json:"excluded"`
}

// AddResult reports a playlist registration.
type AddResult struct {
	Playlist *models.Playlist `json:"playlist"`
	Created  bool             `json:"created"`
	Accepted bool             `json:"accepted"`         // import started in the background
	Queued   bool             `json:"queued"`           // import deferred to the next scan
	Reason   string           `json:"reason,omitempty"` // why the import was deferred
	RunID    string           `json:"run_id,omitempty"`
}

// ScanTicket is the immediate answer to a manual scan request.
type ScanTicket struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

// ValidationResult reports a validate-on-disk pass.
type ValidationResult struct {
	Checked int      `json:"checked"`
	Missing int      `json:"missing"`
	Demoted []string `json:"demoted,omitempty"`
}

// Status is the externally visible engine state.
type Status struct {
	Snapshot
}

// Orchestrator drives reconciliation and downloads against the catalog.
type Orchestrator struct {
	catalog    *repositories.Catalog
	reconciler Reconciler
	downloader services.Downloader
	coord      *Coordinator
	opts       Options
	recorder   Recorder
	logger     *log.Logger
	base       context.Context
	wg         sync.WaitGroup

	sleep func(ctx context.Context, d time.Duration) error
	delay func() time.Duration
	newID func() string
}

// NewOrchestrator creates an Orchestrator over catalog.
func NewOrchestrator(catalog *repositories.Catalog, r Reconciler, d services.Downloader, opts Options) *Orchestrator {
	o := &Orchestrator{
		catalog:    catalog,
		reconciler: r,
		downloader: d,
		coord:      NewCoordinator(),
		opts:       opts,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		base:       opts.BaseContext,
		sleep:      sleepContext,
		newID:      shared.GenerateID,
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.logger == nil {
		o.logger = shared.NewLogger(nil)
	}
	if o.base == nil {
		o.base = context.Background()
	}
	o.delay = o.randomDelay
	return o
}

// Coordinator exposes the run state, mainly for status reporting.
func (o *Orchestrator) Coordinator() *Coordinator {
	return o.coord
}

// Status returns the current engine state.
func (o *Orchestrator) Status() Status {
	return Status{Snapshot: o.coord.Snapshot()}
}

// Wait blocks until background scans and imports have returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// sendProgress sends a progress update through the channel without blocking and keeps its
// message as the current activity.
func (o *Orchestrator) sendProgress(update ProgressUpdate) {
	o.coord.setActivity(update.Message)
	sendProgress(o.opts.Progress, update)
}

func (o *Orchestrator) appendAction(entry models.ActionLogEntry) {
	if err := o.catalog.Actions.Append(entry); err != nil {
		o.logger.Error("failed to append action", "action", entry.Action, "track", entry.TrackID, "error", err)
	}
}

func (o *Orchestrator) randomDelay() time.Duration {
	lo, hi := o.opts.DelayMin, o.opts.DelayMax
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi <= 0 {
		return 0
	}
	if hi == lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
