// Package repositories implements the SQLite catalog store.
//
// Key Implementations:
//   - [PlaylistRepository] : registered playlists, soft deactivation and per-status summaries
//   - [TrackRepository] : the track state machine rows, claims, demotion and hash lookups
//   - [ActionLogRepository] : the append-only audit trail
//
// Every state transition is a single-row conditional UPDATE so concurrent drains cannot both
// claim a track. Sequence numbers from [NextSequence] give stable discovery order independent of
// timestamps.
package repositories
