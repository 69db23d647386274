package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
)

// ActionLogRepository appends and reads audit records.
type ActionLogRepository struct {
	db *sql.DB
}

// NewActionLogRepository creates a new ActionLogRepository with the given database connection
func NewActionLogRepository(db *sql.DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Append records one action.
func (r *ActionLogRepository) Append(entry models.ActionLogEntry) error {
	if entry.Action == "" {
		return fmt.Errorf("action is required")
	}

	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = now()
	}

	query := `
		INSERT INTO action_log (track_id, playlist_id, action, detail, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.Exec(query, entry.TrackID, nullString(entry.PlaylistID), string(entry.Action), entry.Detail, entry.Error, ts); err != nil {
		return fmt.Errorf("failed to append action: %w", err)
	}
	return nil
}

// Recent returns the newest entries first.
func (r *ActionLogRepository) Recent(limit int) ([]models.ActionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(`SELECT id, track_id, playlist_id, action, detail, error, created_at FROM action_log ORDER BY id DESC LIMIT ?`, limit)
}

// ForTrack returns the history of one track, oldest first.
func (r *ActionLogRepository) ForTrack(trackID string) ([]models.ActionLogEntry, error) {
	return r.list(`SELECT id, track_id, playlist_id, action, detail, error, created_at FROM action_log WHERE track_id = ? ORDER BY id ASC`, trackID)
}

func (r *ActionLogRepository) list(query string, args ...any) ([]models.ActionLogEntry, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query action log: %w", err)
	}
	defer rows.Close()

	var entries []models.ActionLogEntry
	for rows.Next() {
		var (
			e          models.ActionLogEntry
			playlistID sql.NullString
			action     string
		)
		if err := rows.Scan(&e.ID, &e.TrackID, &playlistID, &action, &e.Detail, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		e.PlaylistID = playlistID.String
		e.Action = models.Action(action)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}
