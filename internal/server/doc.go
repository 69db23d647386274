// Package server exposes the sync daemon over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [Logging] writes one structured line per request and [Recover] turns panics into 500 responses.
//
// The [BasicRouter] implementation uses [http.ServeMux] with method-qualified patterns
// ("GET /api/status"), so wrong methods are answered with 405 by the mux itself.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # JSON API
//
// [API] serves the daemon endpoints:
//
//	GET    /health                      liveness and scheduler state
//	GET    /api/status                  engine state, totals, recent downloads, settings
//	GET    /api/playlists               active playlists with per-status counts
//	POST   /api/playlists               add a playlist; 202 whether imported now or queued
//	DELETE /api/playlists/{id}          deactivate a playlist
//	GET    /api/playlists/{id}/tracks   tracks of one playlist
//	POST   /api/playlists/{id}/drain    drain pending tracks of one playlist
//	POST   /api/check-now               manual scan; 202 or 409 naming the running operation
//	GET    /api/downloads?limit=N       recent downloads
//	POST   /api/validate                validate files on disk
//	GET    /api/log?limit=N             recent action log entries
//
// Errors are returned as {"error": "..."}. [StatusCode] maps busy to 409, invalid input to 400
// and unknown playlists to 404.
package server
