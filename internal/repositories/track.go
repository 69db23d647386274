package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

const trackColumns = `id, sequence, title, uploader, duration, upload_date, playlist_id, file_path, content_hash,
	file_size, status, metadata, attempts, last_error, discovered_at, updated_at, resolved_at`

// UpsertSummary reports what a batch upsert did.
type UpsertSummary struct {
	Inserted  []string // ids of newly discovered tracks
	Requeued  []string // failed tracks moved back to pending
	Unchanged int      // existing tracks whose status was kept
}

// FileRecord describes a file produced by a successful download.
type FileRecord struct {
	Path string
	Hash string
	Size int64
}

// TrackRepository persists tracks and performs every state transition as a conditional UPDATE.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// UpsertPending records reconciled entries for a playlist in one transaction.
//
// New ids are inserted as pending in slice order. Existing rows get their metadata merged and
// keep their status, except failed rows which are re-queued when maxAttempts is 0 or the track
// has been attempted fewer than maxAttempts times. Downloaded, duplicate, processing and
// restricted rows are never moved.
func (r *TrackRepository) UpsertPending(playlistID string, entries []models.CanonicalEntry, maxAttempts int) (*UpsertSummary, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	summary := &UpsertSummary{}
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}

		var (
			status   string
			rawMeta  string
			attempts int
		)
		err := tx.QueryRow(`SELECT status, metadata, attempts FROM tracks WHERE id = ?`, entry.ID).Scan(&status, &rawMeta, &attempts)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if err := insertPending(tx, playlistID, entry); err != nil {
				return nil, err
			}
			if err := addMember(tx, playlistID, entry.ID); err != nil {
				return nil, err
			}
			summary.Inserted = append(summary.Inserted, entry.ID)
			continue
		case err != nil:
			return nil, fmt.Errorf("failed to look up track %s: %w", entry.ID, err)
		}

		meta := decodeMetadata(rawMeta).Merge(entry.Metadata())
		encoded, err := encodeMetadata(meta)
		if err != nil {
			return nil, err
		}

		next := models.TrackStatus(status)
		if next == models.StatusFailed && (maxAttempts == 0 || attempts < maxAttempts) {
			next = models.StatusPending
		}

		// The columns follow the merged metadata so placeholders never replace known values.
		query := `
			UPDATE tracks
			SET metadata = ?, title = CASE WHEN ? != '' THEN ? ELSE title END,
				uploader = CASE WHEN ? != '' THEN ? ELSE uploader END,
				status = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := tx.Exec(query, encoded, meta.Title, meta.Title, meta.Artist, meta.Artist, string(next), now(), entry.ID); err != nil {
			return nil, fmt.Errorf("failed to update track %s: %w", entry.ID, err)
		}
		if err := addMember(tx, playlistID, entry.ID); err != nil {
			return nil, err
		}

		if next != models.TrackStatus(status) {
			summary.Requeued = append(summary.Requeued, entry.ID)
		} else {
			summary.Unchanged++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return summary, nil
}

func insertPending(tx *sql.Tx, playlistID string, entry models.CanonicalEntry) error {
	sequence, err := nextSequenceTx(tx, "tracks")
	if err != nil {
		return err
	}

	encoded, err := encodeMetadata(entry.Metadata())
	if err != nil {
		return err
	}

	ts := now()
	query := `
		INSERT INTO tracks (id, sequence, title, uploader, duration, playlist_id, status, metadata, discovered_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query, entry.ID, sequence, entry.Title, entry.Artist, entry.Duration,
		nullString(playlistID), string(models.StatusPending), encoded, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert track %s: %w", entry.ID, err)
	}
	return nil
}

// addMember records that playlistID lists trackID. A track keeps the playlist that discovered
// it in playlist_id but can belong to any number of playlists.
func addMember(tx *sql.Tx, playlistID, trackID string) error {
	if playlistID == "" {
		return nil
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO playlist_tracks (playlist_id, track_id, added_at) VALUES (?, ?, ?)`,
		playlistID, trackID, now()); err != nil {
		return fmt.Errorf("failed to link track %s to playlist %s: %w", trackID, playlistID, err)
	}
	return nil
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ?`
	track, err := scanTrack(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return track, err
}

const memberOf = `id IN (SELECT track_id FROM playlist_tracks WHERE playlist_id = ?)`

// ListByStatus returns tracks in status in ascending discovery order.
// A non-empty playlistID keeps the tracks that playlist lists, whichever playlist found them
// first. An empty playlistID spans every playlist.
func (r *TrackRepository) ListByStatus(status models.TrackStatus, playlistID string) ([]*models.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE status = ?`
	args := []any{string(status)}
	if playlistID != "" {
		query += ` AND ` + memberOf
		args = append(args, playlistID)
	}
	query += ` ORDER BY sequence ASC`
	return r.list(query, args...)
}

// ListByPlaylist returns all tracks a playlist lists, in discovery order.
func (r *TrackRepository) ListByPlaylist(playlistID string) ([]*models.Track, error) {
	return r.list(`SELECT `+trackColumns+` FROM tracks WHERE `+memberOf+` ORDER BY sequence ASC`, playlistID)
}

// ListWithFiles returns every downloaded or duplicate track.
func (r *TrackRepository) ListWithFiles() ([]*models.Track, error) {
	return r.list(`SELECT ` + trackColumns + ` FROM tracks WHERE status IN ('downloaded', 'duplicate') ORDER BY sequence ASC`)
}

// ListByFilePath returns downloaded or duplicate tracks pointing at path.
func (r *TrackRepository) ListByFilePath(path string) ([]*models.Track, error) {
	return r.list(`SELECT `+trackColumns+` FROM tracks WHERE file_path = ? AND status IN ('downloaded', 'duplicate') ORDER BY sequence ASC`, path)
}

// Recent returns the most recently downloaded tracks, newest first.
func (r *TrackRepository) Recent(limit int) ([]*models.Track, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(`SELECT `+trackColumns+` FROM tracks WHERE status = 'downloaded' ORDER BY resolved_at DESC, sequence DESC LIMIT ?`, limit)
}

// FindByHash returns a downloaded or duplicate track other than excludeID whose content hash is hash.
// Downloaded owners are preferred. found is false when no such track exists.
func (r *TrackRepository) FindByHash(hash, excludeID string) (track *models.Track, found bool, err error) {
	query := `
		SELECT ` + trackColumns + `
		FROM tracks
		WHERE content_hash = ? AND id != ? AND status IN ('downloaded', 'duplicate')
		ORDER BY CASE status WHEN 'downloaded' THEN 0 ELSE 1 END, sequence ASC
		LIMIT 1
	`
	track, err = scanTrack(r.db.QueryRow(query, hash, excludeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return track, true, nil
}

// Claim moves a pending track to processing and counts the attempt.
// It reports false when another caller claimed it first or it left pending.
func (r *TrackRepository) Claim(id string) (bool, error) {
	query := `
		UPDATE tracks
		SET status = 'processing', attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`
	return r.transition(query, now(), id)
}

// MarkDownloaded finishes a processing track that owns its file.
func (r *TrackRepository) MarkDownloaded(id string, file FileRecord, meta models.TrackMetadata) error {
	return r.finishWithFile(id, models.StatusDownloaded, file, meta)
}

// MarkDuplicate finishes a processing track whose content already exists; file.Path is the owner's path.
func (r *TrackRepository) MarkDuplicate(id string, file FileRecord, meta models.TrackMetadata) error {
	return r.finishWithFile(id, models.StatusDuplicate, file, meta)
}

func (r *TrackRepository) finishWithFile(id string, status models.TrackStatus, file FileRecord, meta models.TrackMetadata) error {
	if file.Path == "" || file.Hash == "" {
		return fmt.Errorf("%w: %s needs a file path and hash", shared.ErrInvalidInput, status)
	}

	encoded, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	ts := now()
	query := `
		UPDATE tracks
		SET status = ?, file_path = ?, content_hash = ?, file_size = ?, metadata = ?,
			title = CASE WHEN ? != '' THEN ? ELSE title END,
			uploader = CASE WHEN ? != '' THEN ? ELSE uploader END,
			duration = CASE WHEN ? > 0 THEN ? ELSE duration END,
			upload_date = CASE WHEN ? != '' THEN ? ELSE upload_date END,
			last_error = '', resolved_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`
	ok, err := r.transition(query, string(status), file.Path, file.Hash, file.Size, encoded,
		meta.Title, meta.Title, meta.Artist, meta.Artist, meta.Duration, meta.Duration,
		meta.UploadDate, meta.UploadDate, ts, ts, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("track %s is not processing", id)
	}
	return nil
}

// MarkFailed finishes a processing track with a retryable failure.
func (r *TrackRepository) MarkFailed(id, reason string) error {
	return r.finishWithoutFile(id, models.StatusFailed, reason)
}

// MarkRestricted finishes a processing track the provider refused to serve.
func (r *TrackRepository) MarkRestricted(id, reason string) error {
	return r.finishWithoutFile(id, models.StatusRestricted, reason)
}

func (r *TrackRepository) finishWithoutFile(id string, status models.TrackStatus, reason string) error {
	ts := now()
	query := `
		UPDATE tracks
		SET status = ?, last_error = ?, file_path = NULL, content_hash = NULL, file_size = 0, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'
	`
	ok, err := r.transition(query, string(status), reason, ts, ts, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("track %s is not processing", id)
	}
	return nil
}

// Demote moves a downloaded or duplicate track back to pending and clears its file fields.
func (r *TrackRepository) Demote(id string) (bool, error) {
	query := `
		UPDATE tracks
		SET status = 'pending', file_path = NULL, content_hash = NULL, file_size = 0, resolved_at = NULL, updated_at = ?
		WHERE id = ? AND status IN ('downloaded', 'duplicate')
	`
	return r.transition(query, now(), id)
}

// ResetProcessing returns every processing track to pending and reports their ids.
// It runs at startup, before anything can claim a track.
func (r *TrackRepository) ResetProcessing() ([]string, error) {
	stuck, err := r.ListByStatus(models.StatusProcessing, "")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(stuck))
	for _, t := range stuck {
		ok, err := r.transition(`UPDATE tracks SET status = 'pending', updated_at = ? WHERE id = ? AND status = 'processing'`, now(), t.ID)
		if err != nil {
			return ids, err
		}
		if ok {
			ids = append(ids, t.ID)
		}
	}
	return ids, nil
}

// Counts returns per-status totals. An empty playlistID counts the whole catalog.
func (r *TrackRepository) Counts(playlistID string) (models.StatusCounts, error) {
	query := `SELECT status, COUNT(*) FROM tracks`
	var args []any
	if playlistID != "" {
		query += ` WHERE ` + memberOf
		args = append(args, playlistID)
	}
	query += ` GROUP BY status`

	var counts models.StatusCounts
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return counts, fmt.Errorf("failed to count tracks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("failed to scan count: %w", err)
		}
		counts.Add(models.TrackStatus(status), n)
	}
	return counts, rows.Err()
}

func (r *TrackRepository) transition(query string, args ...any) (bool, error) {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update track: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows == 1, nil
}

func (r *TrackRepository) list(query string, args ...any) ([]*models.Track, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tracks, nil
}

func scanTrack(s scanner) (*models.Track, error) {
	var (
		t          models.Track
		playlistID sql.NullString
		filePath   sql.NullString
		hash       sql.NullString
		status     string
		rawMeta    string
		resolvedAt sql.NullTime
	)

	err := s.Scan(&t.ID, &t.Sequence, &t.Title, &t.Uploader, &t.Duration, &t.UploadDate, &playlistID,
		&filePath, &hash, &t.FileSize, &status, &rawMeta, &t.Attempts, &t.LastError,
		&t.DiscoveredAt, &t.UpdatedAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	t.PlaylistID = playlistID.String
	t.FilePath = filePath.String
	t.ContentHash = hash.String
	t.Status = models.TrackStatus(status)
	t.Metadata = decodeMetadata(rawMeta)
	t.ResolvedAt = nullTime(resolvedAt)
	return &t, nil
}

func encodeMetadata(meta models.TrackMetadata) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}

// decodeMetadata tolerates empty or malformed blobs so one bad row never blocks a scan.
func decodeMetadata(raw string) models.TrackMetadata {
	var meta models.TrackMetadata
	if strings.TrimSpace(raw) == "" {
		return meta
	}
	_ = json.Unmarshal([]byte(raw), &meta)
	return meta
}
