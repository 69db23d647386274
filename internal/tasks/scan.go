package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// TriggerManualScan starts a scan in the background unless another exclusive operation is
// running, in which case the ticket names the holder. It never blocks on the scan itself.
func (o *Orchestrator) TriggerManualScan(ctx context.Context) ScanTicket {
	release, err := o.coord.TryBegin(OpManualScan, "all playlists")
	if err != nil {
		o.recorder.Rejected(OpManualScan.String())
		o.logger.Debug("manual scan rejected", "reason", err)
		return ScanTicket{Accepted: false, Reason: err.Error()}
	}

	runID := o.newID()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer release()

		if _, err := o.scan(o.base, OpManualScan, runID); err != nil {
			o.logger.Warn("manual scan ended with error", "run", runID, "error", err)
		}
	}()
	return ScanTicket{Accepted: true, RunID: runID}
}

// RunScheduledScan runs a full scan synchronously. It returns an error wrapping
// [shared.ErrAlreadyRunning] when another exclusive operation holds the coordinator.
func (o *Orchestrator) RunScheduledScan(ctx context.Context) (*ScanResult, error) {
	release, err := o.coord.TryBegin(OpScheduledScan, "all playlists")
	if err != nil {
		o.recorder.Rejected(OpScheduledScan.String())
		return nil, err
	}
	defer release()

	return o.scan(ctx, OpScheduledScan, o.newID())
}

// scan validates files, then syncs every active playlist in registration order.
// The caller holds the exclusive slot.
func (o *Orchestrator) scan(ctx context.Context, op Operation, runID string) (*ScanResult, error) {
	logger := o.logger.With("run", runID, "op", op.String())
	result := &ScanResult{RunID: runID, Operation: op.String(), StartedAt: time.Now().UTC()}

	defer func() {
		result.FinishedAt = time.Now().UTC()
		o.coord.setLastScan(result)
		o.recorder.ScanFinished(op.String(), result.FinishedAt.Sub(result.StartedAt), result.Errors > 0)
	}()

	logger.Info("scan started")

	validation, err := o.ValidateFiles(ctx)
	if err != nil && ctx.Err() == nil {
		logger.Error("file validation failed", "error", err)
		result.Errors++
	}
	result.Validation = validation

	playlists, err := o.catalog.Playlists.List(true)
	if err != nil {
		result.Errors++
		return result, fmt.Errorf("failed to list playlists: %w", err)
	}

	for i, p := range playlists {
		if err := ctx.Err(); err != nil {
			result.Canceled = true
			logger.Warn("scan canceled", "remaining", len(playlists)-i)
			return result, err
		}

		o.sendProgress(reconcileUpdate(i+1, len(playlists), p))
		ps := o.syncPlaylist(ctx, p)
		if ps.Error != "" {
			result.Errors++
		}
		result.Totals.Add(ps.Drain)
		result.Playlists = append(result.Playlists, ps)
	}

	logger.Info("scan finished", "playlists", len(playlists), "downloaded", result.Totals.Downloaded,
		"duplicates", result.Totals.Duplicates, "failed", result.Totals.Failed, "errors", result.Errors)
	return result, nil
}

// syncPlaylist reconciles one playlist, records its entries and drains it.
// Provider failures are recorded on the playlist and never abort the scan.
func (o *Orchestrator) syncPlaylist(ctx context.Context, p *models.Playlist) PlaylistScan {
	ps := PlaylistScan{PlaylistID: p.ID, URL: p.SourceURL}

	entries, err := o.refresh(ctx, p, &ps)
	if err != nil {
		ps.Error = err.Error()
		return ps
	}
	ps.Entries = entries

	drain, err := o.DrainPending(ctx, p.ID)
	ps.Drain = drain
	if err != nil && ctx.Err() == nil {
		ps.Error = err.Error()
	}
	return ps
}

// refresh reconciles p and upserts the result. last_checked_at is touched whatever happens.
func (o *Orchestrator) refresh(ctx context.Context, p *models.Playlist, ps *PlaylistScan) (int, error) {
	defer func() {
		if err := o.catalog.Playlists.TouchChecked(p.ID); err != nil {
			o.logger.Warn("failed to touch playlist", "playlist", p.ID, "error", err)
		}
	}()

	res, err := o.reconciler.Reconcile(ctx, p.SourceURL)
	if err != nil {
		o.logger.Warn("playlist unavailable", "playlist", p.ID, "url", p.SourceURL, "error", err)
		o.appendAction(models.ActionLogEntry{PlaylistID: p.ID, Action: models.ActionPlaylistError, Detail: p.SourceURL, Error: err.Error()})
		return 0, err
	}

	ps.Title, ps.Excluded = res.Title, res.Excluded
	if p.DisplayName == "" && res.Title != "" {
		if err := o.catalog.Playlists.SetDisplayName(p.ID, res.Title); err == nil {
			p.DisplayName = res.Title
		}
	}

	summary, err := o.catalog.Tracks.UpsertPending(p.ID, res.Entries, o.opts.MaxAttempts)
	if err != nil {
		o.appendAction(models.ActionLogEntry{PlaylistID: p.ID, Action: models.ActionPlaylistError, Detail: "upsert", Error: err.Error()})
		return 0, fmt.Errorf("failed to record entries: %w", err)
	}

	ps.New, ps.Requeued = len(summary.Inserted), len(summary.Requeued)
	for _, id := range summary.Inserted {
		o.appendAction(models.ActionLogEntry{TrackID: id, PlaylistID: p.ID, Action: models.ActionDiscovered})
	}
	for _, id := range summary.Requeued {
		o.appendAction(models.ActionLogEntry{TrackID: id, PlaylistID: p.ID, Action: models.ActionRequeued})
	}
	o.appendAction(models.ActionLogEntry{
		PlaylistID: p.ID, Action: models.ActionPlaylistChecked,
		Detail: fmt.Sprintf("%d entries, %d new, %d requeued, %d excluded", len(res.Entries), ps.New, ps.Requeued, res.Excluded),
	})
	o.sendProgress(upsertUpdate(p, len(res.Entries), ps.New, ps.Requeued))
	return len(res.Entries), nil
}

// ImportPlaylist runs the initial import of a registered playlist: reconcile, record and drain.
// It returns an error wrapping [shared.ErrAlreadyRunning] when the coordinator is busy, and one
// wrapping [shared.ErrInvalidInput] when url names a different playlist than playlistID.
// An empty url imports whatever the playlist is registered with.
func (o *Orchestrator) ImportPlaylist(ctx context.Context, playlistID, url string) (*ImportResult, error) {
	release, err := o.coord.TryBegin(OpImport, url)
	if err != nil {
		o.recorder.Rejected(OpImport.String())
		return nil, err
	}
	defer release()

	p, err := o.catalog.Playlists.Get(playlistID)
	if err != nil {
		return nil, err
	}
	if err := matchesPlaylist(p, url); err != nil {
		return nil, err
	}
	return o.importPlaylist(ctx, p)
}

// matchesPlaylist checks that url points at the same remote list p was registered with.
func matchesPlaylist(p *models.Playlist, url string) error {
	if url == "" {
		return nil
	}
	normalized, err := shared.NormalizePlaylistURL(url)
	if err != nil {
		return err
	}
	want, err := shared.ExtractPlaylistID(p.SourceURL)
	if err != nil {
		return err
	}
	if got, _ := shared.ExtractPlaylistID(normalized); got != want {
		return fmt.Errorf("%w: playlist %s is registered for list %s, not %s", shared.ErrInvalidInput, p.ID, want, got)
	}
	return nil
}

func (o *Orchestrator) importPlaylist(ctx context.Context, p *models.Playlist) (*ImportResult, error) {
	ps := PlaylistScan{PlaylistID: p.ID, URL: p.SourceURL}
	total, err := o.refresh(ctx, p, &ps)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{PlaylistID: p.ID, Title: ps.Title, Total: total, New: ps.New, Excluded: ps.Excluded}

	drain, err := o.DrainPending(ctx, p.ID)
	if drain != nil {
		result.Downloaded = drain.Downloaded
		result.Duplicates = drain.Duplicates
		result.Failed = drain.Failed
		result.Restricted = drain.Restricted
		result.Skipped = drain.Skipped
	}

	o.logger.Info("import finished", "playlist", p.ID, "total", result.Total, "new", result.New,
		"downloaded", result.Downloaded, "duplicates", result.Duplicates, "failed", result.Failed,
		"restricted", result.Restricted)
	return result, err
}

// AddPlaylist validates and registers a playlist, then starts its import in the background.
// When another operation is running the import is deferred to the next scan and the result
// says why.
func (o *Orchestrator) AddPlaylist(ctx context.Context, rawURL, name string) (*AddResult, error) {
	url, err := shared.NormalizePlaylistURL(rawURL)
	if err != nil {
		return nil, err
	}

	p, created, err := o.catalog.Playlists.Create(url, name)
	if err != nil {
		return nil, err
	}
	result := &AddResult{Playlist: p, Created: created}

	release, err := o.coord.TryBegin(OpImport, url)
	if err != nil {
		var busy *BusyError
		if !errors.As(err, &busy) {
			return nil, err
		}
		o.recorder.Rejected(OpImport.String())
		result.Queued, result.Reason = true, err.Error()
		o.logger.Info("import deferred to next scan", "playlist", p.ID, "reason", err)
		return result, nil
	}

	result.Accepted, result.RunID = true, o.newID()
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer release()

		if _, err := o.importPlaylist(o.base, p); err != nil {
			o.logger.Warn("import failed", "playlist", p.ID, "error", err)
		}
	}()
	return result, nil
}

// RemovePlaylist deactivates a playlist. Its tracks and files are kept.
func (o *Orchestrator) RemovePlaylist(ctx context.Context, playlistID string) error {
	return o.catalog.Playlists.Deactivate(playlistID)
}

// EnsurePlaylists registers each configured default playlist without importing it; the next
// scan picks them up. Invalid URLs are logged and skipped.
func (o *Orchestrator) EnsurePlaylists(ctx context.Context, urls []string) (int, error) {
	created := 0
	for _, raw := range urls {
		url, err := shared.NormalizePlaylistURL(raw)
		if err != nil {
			o.logger.Warn("skipping default playlist", "url", raw, "error", err)
			continue
		}
		_, isNew, err := o.catalog.Playlists.Create(url, "")
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}
	return created, nil
}
