package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Synchronization errors
	ErrSourceUnavailable  = fmt.Errorf("playlist source unavailable")
	ErrAlreadyRunning     = fmt.Errorf("operation already running")
	ErrDownloadTransient  = fmt.Errorf("download failed")
	ErrDownloadRestricted = fmt.Errorf("content is restricted")
	ErrFileMissingOnDisk  = fmt.Errorf("file missing on disk")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// Input validation errors
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrInvalidPlaylistURL = fmt.Errorf("invalid playlist URL")
	ErrMissingArgument    = fmt.Errorf("missing required argument")
	ErrInvalidArgument    = fmt.Errorf("invalid argument")
)
