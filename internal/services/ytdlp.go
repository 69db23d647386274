// yt-dlp flat playlist extraction
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

const defaultYTDLP = "yt-dlp"

// ytdlpInfo is the subset of yt-dlp's info JSON the engine reads, for both playlists and videos.
type ytdlpInfo struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Uploader     string       `json:"uploader"`
	Channel      string       `json:"channel"`
	Artist       string       `json:"artist"`
	Album        string       `json:"album"`
	ReleaseYear  int          `json:"release_year"`
	Duration     float64      `json:"duration"`
	UploadDate   string       `json:"upload_date"`
	Description  string       `json:"description"`
	ViewCount    int64        `json:"view_count"`
	Thumbnail    string       `json:"thumbnail"`
	Availability string       `json:"availability"`
	Entries      []*ytdlpInfo `json:"entries"`
}

func (i *ytdlpInfo) channel() string {
	if i.Channel != "" {
		return i.Channel
	}
	return i.Uploader
}

// metadata converts video info into structured metadata.
func (i *ytdlpInfo) metadata() models.TrackMetadata {
	meta := models.TrackMetadata{
		Title:       i.Title,
		Artist:      i.Artist,
		Album:       i.Album,
		Thumbnail:   i.Thumbnail,
		Channel:     i.channel(),
		Duration:    int(i.Duration),
		UploadDate:  i.UploadDate,
		Description: i.Description,
		ViewCount:   i.ViewCount,
	}
	if i.ReleaseYear > 0 {
		meta.Year = fmt.Sprint(i.ReleaseYear)
	} else if len(i.UploadDate) >= 4 {
		meta.Year = i.UploadDate[:4]
	}
	return meta
}

// YTDLPService implements [PlaylistFetcher] with yt-dlp flat extraction.
//
// Flat extraction lists ids without resolving each video, so it sees entries the primary
// provider can miss but carries little metadata: the uploader stands in for the artist.
type YTDLPService struct {
	bin     string
	timeout time.Duration
	run     CommandRunner
}

// NewYTDLPService creates the secondary provider. A nil runner uses [ExecRunner].
func NewYTDLPService(bin string, timeout time.Duration, run CommandRunner) *YTDLPService {
	if bin == "" {
		bin = defaultYTDLP
	}
	if run == nil {
		run = ExecRunner
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &YTDLPService{bin: bin, timeout: timeout, run: run}
}

// Name returns the provider name.
func (s *YTDLPService) Name() string {
	return "yt-dlp"
}

// FetchPlaylist lists the playlist at playlistURL without downloading anything.
func (s *YTDLPService) FetchPlaylist(ctx context.Context, playlistURL string) (*models.PlaylistListing, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stdout, stderr, err := s.run(ctx, s.bin, "--flat-playlist", "--dump-single-json", "--no-warnings", "--ignore-errors", playlistURL)
	if err != nil && len(stdout) == 0 {
		return nil, fmt.Errorf("%w: yt-dlp flat extraction: %v: %s", shared.ErrServiceUnavailable, err, lastLine(stderr))
	}

	var info ytdlpInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
	}

	listing := &models.PlaylistListing{
		ID:      info.ID,
		Title:   info.Title,
		Entries: make([]models.CanonicalEntry, 0, len(info.Entries)),
	}
	for _, e := range info.Entries {
		if e == nil || e.ID == "" {
			continue
		}
		listing.Entries = append(listing.Entries, models.CanonicalEntry{
			ID:           e.ID,
			Title:        e.Title,
			Artist:       e.Uploader,
			Channel:      e.channel(),
			Duration:     int(e.Duration),
			Availability: models.Availability(e.Availability),
			SourceTag:    models.SourceFallback,
		})
	}

	if len(listing.Entries) == 0 && err != nil {
		return nil, fmt.Errorf("%w: yt-dlp returned no entries: %v", shared.ErrServiceUnavailable, err)
	}
	return listing, nil
}

// restrictionMarkers are yt-dlp error fragments meaning the video needs an account or payment.
var restrictionMarkers = []string{
	"private video",
	"sign in to confirm your age",
	"age-restricted",
	"inappropriate for some users",
	"members-only",
	"join this channel",
	"available to this channel's members",
	"requires payment",
	"premium members",
	"this video is private",
}

// classifyYTDLPError wraps a yt-dlp failure as restricted or transient based on its output.
func classifyYTDLPError(err error, stderr []byte) error {
	msg := strings.ToLower(string(stderr))
	for _, marker := range restrictionMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %s", shared.ErrDownloadRestricted, lastLine(stderr))
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out", shared.ErrDownloadTransient)
	}
	detail := lastLine(stderr)
	if detail == "" && err != nil {
		detail = err.Error()
	}
	return fmt.Errorf("%w: %s", shared.ErrDownloadTransient, detail)
}

// lastLine returns the last non-empty line of out.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
