// Package tasks drives playlists from discovery to downloaded files.
//
// # Core Operations
//
// The [Orchestrator] exposes the engine:
//
//  1. [Orchestrator.RunScheduledScan] and [Orchestrator.TriggerManualScan] : full catalog scan
//     - Validates files on disk and demotes tracks whose file is gone
//     - Reconciles every active playlist and records new entries as pending
//     - Drains each playlist's pending tracks
//
//  2. [Orchestrator.ImportPlaylist] and [Orchestrator.AddPlaylist] : initial import of one playlist
//
//  3. [Orchestrator.DrainPending] : download pending tracks in discovery order
//     - Claims each track in memory and in the catalog before downloading it
//     - Deduplicates by SHA-256 of the file content
//
//  4. [Orchestrator.Recover] : startup recovery of tracks left in processing
//
// # Exclusion
//
// Scans and imports are exclusive. The [Coordinator] rejects a second one immediately with a
// [BusyError] naming the holder; the [Scheduler] skips its tick in that case.
//
// # Progress Reporting
//
// # All operations use non-blocking channels for progress updates
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking. The last message is kept as the current activity.
//
// # Export
//
// [CatalogExporter] writes the local catalog of playlists to CSV, Markdown, text or JSON
// with a worker pool and a manifest.
package tasks
