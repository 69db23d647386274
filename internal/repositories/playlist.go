package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

const playlistColumns = `id, sequence, source_url, display_name, active, last_checked_at, created_at, updated_at`

// PlaylistRepository persists registered playlists.
//
// Playlists are never deleted: removal deactivates the row so the tracks keep their owner.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create registers a playlist by source URL.
//
// The call is idempotent on sourceURL: an existing row is returned, reactivated if it was
// deactivated, and given displayName when it had none. created reports whether a row was inserted.
func (r *PlaylistRepository) Create(sourceURL, displayName string) (playlist *models.Playlist, created bool, err error) {
	existing, err := r.GetByURL(sourceURL)
	switch {
	case err == nil:
		if !existing.Active || (existing.DisplayName == "" && displayName != "") {
			name := existing.DisplayName
			if name == "" {
				name = displayName
			}
			query := `UPDATE playlists SET active = 1, display_name = ?, updated_at = ? WHERE id = ?`
			if _, err := r.db.Exec(query, name, now(), existing.ID); err != nil {
				return nil, false, fmt.Errorf("failed to reactivate playlist: %w", err)
			}
			existing, err = r.Get(existing.ID)
			if err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	case !errors.Is(err, shared.ErrPlaylistNotFound):
		return nil, false, err
	}

	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate sequence: %w", err)
	}

	ts := now()
	playlist = &models.Playlist{
		ID:          shared.GenerateID(),
		Sequence:    sequence,
		SourceURL:   sourceURL,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := playlist.Validate(); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO playlists (id, sequence, source_url, display_name, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`
	if _, err := r.db.Exec(query, playlist.ID, sequence, sourceURL, displayName, ts, ts); err != nil {
		return nil, false, fmt.Errorf("failed to insert playlist: %w", err)
	}

	return playlist, true, nil
}

// Get retrieves a playlist by ID, including inactive playlists
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByURL retrieves a playlist by its source URL
func (r *PlaylistRepository) GetByURL(sourceURL string) (*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE source_url = ?`
	return r.scanOne(r.db.QueryRow(query, sourceURL))
}

// List retrieves playlists in registration order. activeOnly excludes deactivated playlists.
func (r *PlaylistRepository) List(activeOnly bool) ([]*models.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY sequence ASC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return playlists, nil
}

// Deactivate soft-deletes a playlist. Its tracks are kept.
func (r *PlaylistRepository) Deactivate(id string) error {
	result, err := r.db.Exec(`UPDATE playlists SET active = 0, updated_at = ? WHERE id = ? AND active = 1`, now(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate playlist: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}
	return nil
}

// SetDisplayName stores the title reported by the providers.
func (r *PlaylistRepository) SetDisplayName(id, name string) error {
	if _, err := r.db.Exec(`UPDATE playlists SET display_name = ?, updated_at = ? WHERE id = ?`, name, now(), id); err != nil {
		return fmt.Errorf("failed to rename playlist: %w", err)
	}
	return nil
}

// TouchChecked records a scan attempt, successful or not.
func (r *PlaylistRepository) TouchChecked(id string) error {
	ts := now()
	if _, err := r.db.Exec(`UPDATE playlists SET last_checked_at = ?, updated_at = ? WHERE id = ?`, ts, ts, id); err != nil {
		return fmt.Errorf("failed to update last_checked_at: %w", err)
	}
	return nil
}

// Summaries returns playlists with per-status track counts.
func (r *PlaylistRepository) Summaries(activeOnly bool) ([]models.PlaylistSummary, error) {
	playlists, err := r.List(activeOnly)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT pt.playlist_id, t.status, COUNT(*)
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		GROUP BY pt.playlist_id, t.status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tracks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]*models.StatusCounts)
	for rows.Next() {
		var (
			playlistID sql.NullString
			status     string
			n          int
		)
		if err := rows.Scan(&playlistID, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		c := counts[playlistID.String]
		if c == nil {
			c = &models.StatusCounts{}
			counts[playlistID.String] = c
		}
		c.Add(models.TrackStatus(status), n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	summaries := make([]models.PlaylistSummary, 0, len(playlists))
	for _, p := range playlists {
		summary := models.PlaylistSummary{Playlist: *p}
		if c := counts[p.ID]; c != nil {
			summary.Counts = *c
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// scanOne scans a single row into a [models.Playlist]
func (r *PlaylistRepository) scanOne(row *sql.Row) (*models.Playlist, error) {
	playlist, err := scanPlaylist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrPlaylistNotFound
	}
	return playlist, err
}

// scanRow scans a row from [sql.Rows] into a [models.Playlist]
func (r *PlaylistRepository) scanRow(rows *sql.Rows) (*models.Playlist, error) {
	return scanPlaylist(rows)
}

func scanPlaylist(s scanner) (*models.Playlist, error) {
	var (
		p           models.Playlist
		lastChecked sql.NullTime
	)

	err := s.Scan(&p.ID, &p.Sequence, &p.SourceURL, &p.DisplayName, &p.Active, &lastChecked, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}

	p.LastCheckedAt = nullTime(lastChecked)
	return &p, nil
}
