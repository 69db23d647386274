// package repositories provides the catalog store for playlists, tracks and the action log.
package repositories

import (
	"database/sql"
	"fmt"
	"time"
)

// Catalog groups the repositories that share one database handle.
type Catalog struct {
	Playlists *PlaylistRepository
	Tracks    *TrackRepository
	Actions   *ActionLogRepository
}

// NewCatalog creates all repositories over db.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{
		Playlists: NewPlaylistRepository(db),
		Tracks:    NewTrackRepository(db),
		Actions:   NewActionLogRepository(db),
	}
}

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// Sequence numbers order playlists and tracks by discovery. They are used for sorting and
// are not part of any identifier.
func NextSequence(db *sql.DB, table string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequenceTx(tx, table)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sequence transaction: %w", err)
	}

	return sequence, nil
}

// nextSequenceTx increments the sequence for table inside an open transaction.
func nextSequenceTx(tx *sql.Tx, table string) (int64, error) {
	sequenceTable := table + "_sequence"

	if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable)); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int64
	if err := tx.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}

// scanner is satisfied by [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func now() time.Time {
	return time.Now().UTC()
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
