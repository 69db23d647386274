// YouTube Music metadata provider
//
// Communicates with the FastAPI proxy server wrapping the ytmusicapi Python library.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

const defaultYTBaseURL string = "http://localhost:8000"

// YouTubeImage represents an image/thumbnail from YouTube Music.
type YouTubeImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID      string          `json:"videoId"`
	Title        string          `json:"title"`
	Artists      []YouTubeArtist `json:"artists"`
	Album        *youtubeAlbum   `json:"album"`
	Year         string          `json:"year,omitempty"`
	Duration     string          `json:"duration"`
	DurationSec  int             `json:"duration_seconds"`
	Thumbnails   []YouTubeImage  `json:"thumbnails"`
	Channel      string          `json:"author,omitempty"`
	Availability string          `json:"availability,omitempty"`
}

// YouTubePlaylist represents a playlist from YouTube Music.
type YouTubePlaylist struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	TrackCount int            `json:"trackCount"`
	Tracks     []YouTubeTrack `json:"tracks,omitempty"`
}

// entry converts the proxy representation into a [models.CanonicalEntry].
// The largest thumbnail is listed last by ytmusicapi.
func (t YouTubeTrack) entry(tag models.SourceTag) models.CanonicalEntry {
	e := models.CanonicalEntry{
		ID:           t.VideoID,
		Title:        t.Title,
		Year:         t.Year,
		Channel:      t.Channel,
		Duration:     t.DurationSec,
		Availability: models.Availability(t.Availability),
		SourceTag:    tag,
	}
	if len(t.Artists) > 0 {
		e.Artist = t.Artists[0].Name
	}
	if t.Album != nil {
		e.Album = t.Album.Name
	}
	if e.Duration == 0 {
		e.Duration = parseClock(t.Duration)
	}
	if n := len(t.Thumbnails); n > 0 {
		e.Thumbnail = t.Thumbnails[n-1].URL
	}
	return e
}

// YouTubeMusicService implements [MetadataProvider] for YouTube Music via proxy.
type YouTubeMusicService struct {
	baseURL    string
	authFile   string
	language   string
	location   string
	attempts   uint
	retryDelay time.Duration
	httpClient *http.Client
}

// YouTubeMusicOption configures a [YouTubeMusicService].
type YouTubeMusicOption func(*YouTubeMusicService)

// WithAuthFile sets the browser headers file forwarded to the proxy.
func WithAuthFile(path string) YouTubeMusicOption {
	return func(y *YouTubeMusicService) { y.authFile = path }
}

// WithLocalization sets the language and location forwarded to the proxy.
func WithLocalization(language, location string) YouTubeMusicOption {
	return func(y *YouTubeMusicService) { y.language, y.location = language, location }
}

// WithRetry sets the number of attempts per request and the initial backoff.
func WithRetry(attempts uint, delay time.Duration) YouTubeMusicOption {
	return func(y *YouTubeMusicService) { y.attempts, y.retryDelay = attempts, delay }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) YouTubeMusicOption {
	return func(y *YouTubeMusicService) { y.httpClient = c }
}

// NewYouTubeMusicService creates a new YouTube Music provider.
func NewYouTubeMusicService(baseURL string, opts ...YouTubeMusicOption) *YouTubeMusicService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}

	y := &YouTubeMusicService{
		baseURL:    baseURL,
		attempts:   3,
		retryDelay: 500 * time.Millisecond,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(y)
	}
	if y.attempts == 0 {
		y.attempts = 1
	}
	return y
}

// Name returns the service name.
func (y *YouTubeMusicService) Name() string {
	return "YouTube Music"
}

// statusError is returned for non-2xx proxy responses.
type statusError struct {
	code   int
	detail string
}

func (e *statusError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("youtube music API error (status %d): %s", e.code, e.detail)
	}
	return fmt.Sprintf("youtube music API error: status %d", e.code)
}

func (e *statusError) Unwrap() error { return shared.ErrAPIRequest }

// retryable reports whether a failed request is worth repeating.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

// doRequest performs a GET against the proxy, retrying transient failures.
func (y *YouTubeMusicService) doRequest(ctx context.Context, endpoint string, result any) error {
	return retry.Do(
		func() error { return y.doOnce(ctx, endpoint, result) },
		retry.Context(ctx),
		retry.Attempts(y.attempts),
		retry.Delay(y.retryDelay),
		retry.RetryIf(retryable),
		retry.LastErrorOnly(true),
	)
}

func (y *YouTubeMusicService) doOnce(ctx context.Context, endpoint string, result any) error {
	apiURL := y.baseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if y.authFile != "" {
		req.Header.Set("X-Auth-File", y.authFile)
	}
	if y.language != "" {
		req.Header.Set("X-Language", y.language)
	}
	if y.location != "" {
		req.Header.Set("X-Location", y.location)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return &statusError{code: resp.StatusCode, detail: errResp.Detail}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// FetchPlaylist retrieves every track of the playlist at playlistURL.
//
// Calls GET /api/playlists/{id}?limit=0 on the proxy; limit 0 asks for the full playlist.
func (y *YouTubeMusicService) FetchPlaylist(ctx context.Context, playlistURL string) (*models.PlaylistListing, error) {
	id, err := shared.ExtractPlaylistID(playlistURL)
	if err != nil {
		return nil, err
	}

	var playlist YouTubePlaylist
	endpoint := fmt.Sprintf("/api/playlists/%s?limit=0", url.PathEscape(id))
	if err := y.doRequest(ctx, endpoint, &playlist); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
		}
		return nil, err
	}

	listing := &models.PlaylistListing{
		ID:      id,
		Title:   playlist.Title,
		Entries: make([]models.CanonicalEntry, 0, len(playlist.Tracks)),
	}
	for _, t := range playlist.Tracks {
		if t.VideoID == "" {
			continue
		}
		listing.Entries = append(listing.Entries, t.entry(models.SourcePrimary))
	}
	return listing, nil
}

// FetchTrack retrieves a single song by video ID.
//
// Calls GET /api/songs/{videoId} on the proxy.
func (y *YouTubeMusicService) FetchTrack(ctx context.Context, id string) (*models.CanonicalEntry, error) {
	var track YouTubeTrack
	if err := y.doRequest(ctx, "/api/songs/"+url.PathEscape(id), &track); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
		}
		return nil, err
	}

	if track.VideoID == "" {
		track.VideoID = id
	}
	if track.Title == "" {
		return nil, fmt.Errorf("%w: %s has no title", shared.ErrTrackNotFound, id)
	}

	entry := track.entry(models.SourceEnriched)
	return &entry, nil
}

// Health checks that the proxy is reachable.
//
// Calls GET /health on the proxy.
func (y *YouTubeMusicService) Health(ctx context.Context) error {
	var body map[string]any
	if err := y.doOnce(ctx, "/health", &body); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	return nil
}

// parseClock converts "M:SS" or "H:MM:SS" into seconds. It returns 0 for anything else.
func parseClock(s string) int {
	total := 0
	parts := 0
	field := 0
	digits := 0
	for _, r := range s + ":" {
		switch {
		case r >= '0' && r <= '9':
			field = field*10 + int(r-'0')
			digits++
		case r == ':':
			if digits == 0 {
				return 0
			}
			total = total*60 + field
			field, digits = 0, 0
			parts++
		default:
			return 0
		}
	}
	if parts < 2 || parts > 3 {
		return 0
	}
	return total
}
