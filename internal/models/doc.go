// Package models defines the domain entities of the playlist synchronization engine.
//
// The package contains three groups of types:
//
// 1. Persistent entities stored in the catalog
//   - [Playlist] : a remote playlist being synchronized
//   - [Track] : one source track and its position in the download state machine
//   - [ActionLogEntry] : append-only audit record of a track transition
//
// 2. Reconciliation values
//   - [CanonicalEntry] : one entry of the merged playlist view
//   - [SourceTag] : which provider produced an entry
//   - [Availability] : access level reported by the remote service
//
// 3. Structured metadata
//   - [TrackMetadata] : optional descriptive fields merged by presence
//   - [StatusCounts] : per-status totals for a playlist or the whole catalog
//
// Persistent entities implement [Model].
package models
