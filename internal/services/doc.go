// Package services implements the external providers the sync engine depends on.
//
// # Metadata Providers
//
// Playlist contents come from two independent sources implementing [PlaylistFetcher]:
//   - [YouTubeMusicService] : the primary provider, an HTTP proxy wrapping ytmusicapi. It also
//     implements [TrackFetcher] for single-track enrichment lookups.
//   - [YTDLPService] : the secondary provider, yt-dlp flat playlist extraction.
//
// Proxy requests are retried with backoff for network errors and 5xx responses.
//
// # Download Provider
//
// [YTDLPDownloader] implements [Downloader]. It checks availability, tries each configured
// format selector in order, hashes the resulting file and tags it through a [Tagger].
//
// # Error Handling
//
// Providers return typed errors from the shared package:
//   - [shared.ErrDownloadRestricted] : the remote service refuses anonymous access
//   - [shared.ErrDownloadTransient] : any other download failure, retryable later
//   - [shared.ErrAPIRequest] : the proxy answered with an error status
//   - [shared.ErrTrackNotFound] : a single-track lookup found nothing usable
//
// # Daemon Client
//
// [APIService] is the HTTP client CLI commands and the TUI use to talk to a running daemon.
package services
