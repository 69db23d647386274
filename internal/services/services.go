// package services defines the provider interfaces used by reconciliation and downloads
package services

import (
	"context"
	"os/exec"

	"github.com/desertthunder/tunesync/internal/models"
)

// PlaylistFetcher lists the entries of a playlist.
type PlaylistFetcher interface {
	// FetchPlaylist returns the playlist at url in source order.
	FetchPlaylist(ctx context.Context, url string) (*models.PlaylistListing, error)

	// Name returns the provider name used in logs.
	Name() string
}

// TrackFetcher resolves a single track by id.
type TrackFetcher interface {
	// FetchTrack returns the entry for id or an error wrapping [shared.ErrTrackNotFound].
	FetchTrack(ctx context.Context, id string) (*models.CanonicalEntry, error)
}

// MetadataProvider is a provider able to list playlists and resolve single tracks.
type MetadataProvider interface {
	PlaylistFetcher
	TrackFetcher
}

// Downloader fetches the audio for a track.
type Downloader interface {
	// Download writes the audio for trackID. Errors wrap [shared.ErrDownloadRestricted] or
	// [shared.ErrDownloadTransient].
	Download(ctx context.Context, trackID string, meta models.TrackMetadata) (*models.DownloadResult, error)
}

// Tagger writes descriptive tags into an audio file.
type Tagger interface {
	WriteTags(path string, meta models.TrackMetadata) error
}

// CommandRunner runs an external program and returns its standard output and standard error.
type CommandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands with [exec.CommandContext].
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr limitedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
