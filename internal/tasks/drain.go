package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/shared"
)

// DrainPending downloads the pending tracks of playlistID, or of every playlist when it is
// empty, in ascending discovery order.
//
// A failing track is recorded and the loop moves on. Cancelling ctx stops the drain between
// tracks; a download already running finishes first.
func (o *Orchestrator) DrainPending(ctx context.Context, playlistID string) (*DrainResult, error) {
	done := o.coord.beginDrain()
	defer done()

	pending, err := o.catalog.Tracks.ListByStatus(models.StatusPending, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending tracks: %w", err)
	}

	result := &DrainResult{}
	total := len(pending)
	for i, t := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !o.coord.Claim(t.ID) {
			result.Skipped++
			continue
		}

		o.sendProgress(downloadUpdate(i+1, total, t))
		status := o.drainOne(ctx, t)
		result.record(status)
		if status != "" {
			o.sendProgress(downloadDoneUpdate(i+1, total, t, status))
		}

		// A duplicate was fetched in full before its hash matched, so it is throttled too.
		fetched := status == models.StatusDownloaded || status == models.StatusDuplicate
		if fetched && o.opts.DelayEnabled {
			if d := o.delay(); d > 0 {
				o.logger.Debug("pausing between downloads", "delay", d)
				if err := o.sleep(ctx, d); err != nil {
					o.coord.Release(t.ID)
					return result, err
				}
			}
		}
		o.coord.Release(t.ID)
	}

	if total > 0 {
		o.logger.Info("drain finished", "playlist", playlistID, "downloaded", result.Downloaded,
			"duplicates", result.Duplicates, "failed", result.Failed, "restricted", result.Restricted,
			"skipped", result.Skipped)
	}
	return result, nil
}

// drainOne takes one track from pending to a terminal status. It returns an empty status when
// the track was no longer pending or another process claimed it first.
func (o *Orchestrator) drainOne(ctx context.Context, t *models.Track) (status models.TrackStatus) {
	current, err := o.catalog.Tracks.Get(t.ID)
	if err != nil {
		o.logger.Warn("failed to re-read track", "track", t.ID, "error", err)
		return ""
	}
	if current.Status != models.StatusPending {
		return ""
	}

	claimed, err := o.catalog.Tracks.Claim(t.ID)
	if err != nil {
		o.logger.Error("failed to claim track", "track", t.ID, "error", err)
		return ""
	}
	if !claimed {
		return ""
	}
	o.appendAction(models.ActionLogEntry{TrackID: t.ID, PlaylistID: t.PlaylistID, Action: models.ActionClaimed})

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while processing track", "track", t.ID, "panic", r)
			status = o.fail(current, fmt.Errorf("panic: %v", r))
		}
		o.recorder.TrackFinished(status)
	}()

	// The download is not interrupted by shutdown; its own timeout bounds it.
	res, err := o.downloader.Download(context.WithoutCancel(ctx), t.ID, current.Metadata)
	if err != nil {
		if errors.Is(err, shared.ErrDownloadRestricted) {
			return o.restrict(current, err)
		}
		return o.fail(current, err)
	}

	status, err = o.persist(current, res)
	if err != nil {
		return o.fail(current, err)
	}
	return status
}

// persist records a finished download, deduplicating by content hash.
func (o *Orchestrator) persist(t *models.Track, res *models.DownloadResult) (models.TrackStatus, error) {
	meta := t.Metadata.Merge(res.Metadata)

	owner, found, err := o.catalog.Tracks.FindByHash(res.ContentHash, t.ID)
	if err != nil {
		return "", fmt.Errorf("failed to look up content hash: %w", err)
	}

	if found && owner.FilePath != "" && shared.FileExists(owner.FilePath) {
		if res.FilePath != owner.FilePath {
			if err := os.Remove(res.FilePath); err != nil && !os.IsNotExist(err) {
				o.logger.Warn("failed to remove duplicate file", "path", res.FilePath, "error", err)
			}
		}

		file := repositories.FileRecord{Path: owner.FilePath, Hash: res.ContentHash, Size: owner.FileSize}
		if err := o.catalog.Tracks.MarkDuplicate(t.ID, file, meta); err != nil {
			return "", err
		}
		o.appendAction(models.ActionLogEntry{
			TrackID: t.ID, PlaylistID: t.PlaylistID, Action: models.ActionDuplicate,
			Detail: fmt.Sprintf("same content as %s at %s", owner.ID, owner.FilePath),
		})
		o.logger.Info("duplicate content", "track", t.ID, "owner", owner.ID)
		return models.StatusDuplicate, nil
	}

	if found {
		if ok, err := o.catalog.Tracks.Demote(owner.ID); err != nil {
			o.logger.Warn("failed to demote stale owner", "track", owner.ID, "error", err)
		} else if ok {
			o.recorder.Demoted(1)
			o.appendAction(models.ActionLogEntry{
				TrackID: owner.ID, PlaylistID: owner.PlaylistID, Action: models.ActionDemoted,
				Detail: fmt.Sprintf("file replaced by %s", t.ID), Error: shared.ErrFileMissingOnDisk.Error(),
			})
		}
	}

	file := repositories.FileRecord{Path: res.FilePath, Hash: res.ContentHash, Size: res.SizeBytes}
	if err := o.catalog.Tracks.MarkDownloaded(t.ID, file, meta); err != nil {
		return "", err
	}
	o.appendAction(models.ActionLogEntry{
		TrackID: t.ID, PlaylistID: t.PlaylistID, Action: models.ActionDownloaded, Detail: res.FilePath,
	})
	o.logger.Info("downloaded", "track", t.ID, "path", res.FilePath, "bytes", res.SizeBytes)
	return models.StatusDownloaded, nil
}

func (o *Orchestrator) fail(t *models.Track, cause error) models.TrackStatus {
	o.logger.Warn("download failed", "track", t.ID, "error", cause)
	if err := o.catalog.Tracks.MarkFailed(t.ID, cause.Error()); err != nil {
		o.logger.Error("failed to mark track failed", "track", t.ID, "error", err)
	}
	o.appendAction(models.ActionLogEntry{
		TrackID: t.ID, PlaylistID: t.PlaylistID, Action: models.ActionFailed, Error: cause.Error(),
	})
	return models.StatusFailed
}

func (o *Orchestrator) restrict(t *models.Track, cause error) models.TrackStatus {
	o.logger.Info("track restricted", "track", t.ID, "reason", cause)
	if err := o.catalog.Tracks.MarkRestricted(t.ID, cause.Error()); err != nil {
		o.logger.Error("failed to mark track restricted", "track", t.ID, "error", err)
	}
	o.appendAction(models.ActionLogEntry{
		TrackID: t.ID, PlaylistID: t.PlaylistID, Action: models.ActionRestricted, Error: cause.Error(),
	})
	return models.StatusRestricted
}

// ValidateFiles demotes every downloaded or duplicate track whose file is gone.
func (o *Orchestrator) ValidateFiles(ctx context.Context) (*ValidationResult, error) {
	tracks, err := o.catalog.Tracks.ListWithFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks with files: %w", err)
	}

	result := &ValidationResult{Checked: len(tracks)}
	for _, t := range tracks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if shared.FileExists(t.FilePath) {
			continue
		}

		result.Missing++
		if o.demote(t, "validation") {
			result.Demoted = append(result.Demoted, t.ID)
		}
	}

	o.sendProgress(validateUpdate(result.Checked, result.Missing))
	if result.Missing > 0 {
		o.logger.Warn("files missing on disk", "missing", result.Missing, "demoted", len(result.Demoted))
	}
	return result, nil
}

// HandleFileRemoved demotes the tracks recorded at path once the file is really gone.
func (o *Orchestrator) HandleFileRemoved(ctx context.Context, path string) (int, error) {
	if shared.FileExists(path) {
		return 0, nil
	}

	tracks, err := o.catalog.Tracks.ListByFilePath(path)
	if err != nil {
		return 0, fmt.Errorf("failed to look up tracks for %s: %w", path, err)
	}

	demoted := 0
	for _, t := range tracks {
		if o.demote(t, "file removed") {
			demoted++
		}
	}
	return demoted, nil
}

func (o *Orchestrator) demote(t *models.Track, reason string) bool {
	ok, err := o.catalog.Tracks.Demote(t.ID)
	if err != nil {
		o.logger.Error("failed to demote track", "track", t.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}

	o.recorder.Demoted(1)
	o.appendAction(models.ActionLogEntry{
		TrackID: t.ID, PlaylistID: t.PlaylistID, Action: models.ActionDemoted,
		Detail: fmt.Sprintf("%s: %s", reason, t.FilePath), Error: shared.ErrFileMissingOnDisk.Error(),
	})
	o.logger.Info("demoted track with missing file", "track", t.ID, "path", t.FilePath)
	return true
}

// Recover resets tracks left in processing by an interrupted run, then validates files on disk.
// It must complete before anything else can claim a track.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	ids, err := o.catalog.Tracks.ResetProcessing()
	if err != nil {
		return 0, fmt.Errorf("failed to reset processing tracks: %w", err)
	}
	for _, id := range ids {
		o.appendAction(models.ActionLogEntry{TrackID: id, Action: models.ActionRecovered, Detail: "processing -> pending"})
	}
	o.sendProgress(recoverUpdate(len(ids)))
	if len(ids) > 0 {
		o.logger.Warn("recovered interrupted tracks", "count", len(ids))
	}

	if _, err := o.ValidateFiles(ctx); err != nil {
		return len(ids), err
	}
	return len(ids), nil
}
