// package reconcile merges the primary and secondary playlist views into one authoritative track list.
//
// The primary provider (ytmusicapi proxy) carries rich metadata but silently drops some entries;
// the secondary (yt-dlp flat extraction) lists everything but knows little about each entry.
// Entries only the secondary reports are looked up one by one on the primary, rate limited.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
	"golang.org/x/time/rate"
)

const (
	UnknownArtist = models.UnknownArtist
	UnknownTitle  = models.UnknownTitle
	UnknownAlbum  = models.UnknownAlbum
)

var clockPattern = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)

// Result is the reconciled view of one playlist.
type Result struct {
	Title    string
	Entries  []models.CanonicalEntry
	Excluded int // entries dropped for restricted availability

	Primary   int // entries listed by the primary provider
	Secondary int // entries listed by the secondary provider
	Enriched  int
	Fallback  int
}

// Reconciler merges a primary and a secondary provider.
type Reconciler struct {
	primary   services.MetadataProvider
	secondary services.PlaylistFetcher
	limiter   *rate.Limiter
	logger    *log.Logger
}

// New creates a Reconciler. lookupsPerSecond bounds single-track enrichment calls; zero or less
// disables the limit. Either provider may be nil.
func New(primary services.MetadataProvider, secondary services.PlaylistFetcher, lookupsPerSecond float64, logger *log.Logger) *Reconciler {
	limit := rate.Inf
	if lookupsPerSecond > 0 {
		limit = rate.Limit(lookupsPerSecond)
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Reconciler{
		primary:   primary,
		secondary: secondary,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Reconcile fetches url from both providers and returns the merged entries.
//
// Primary entries come first in source order, followed by entries only the secondary listed in
// its order. Returns an error wrapping [shared.ErrSourceUnavailable] when neither provider answered.
func (r *Reconciler) Reconcile(ctx context.Context, url string) (*Result, error) {
	primary, primaryErr := r.fetch(ctx, r.primary, url)
	if primaryErr != nil {
		r.logger.Warn("primary provider failed", "url", url, "error", primaryErr)
	}

	secondary, secondaryErr := r.fetch(ctx, r.secondary, url)
	if secondaryErr != nil {
		r.logger.Warn("secondary provider failed", "url", url, "error", secondaryErr)
	}

	if primaryErr != nil && secondaryErr != nil {
		return nil, fmt.Errorf("%w: %s: primary: %v; secondary: %v", shared.ErrSourceUnavailable, url, primaryErr, secondaryErr)
	}

	result := &Result{}
	seen := make(map[string]bool)
	var merged []models.CanonicalEntry

	if primary != nil {
		result.Title = primary.Title
		for _, e := range primary.Entries {
			if e.ID == "" || seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			e.SourceTag = models.SourcePrimary
			merged = append(merged, e)
			result.Primary++
		}
	}

	if secondary != nil {
		if result.Title == "" {
			result.Title = secondary.Title
		}

		for _, e := range secondary.Entries {
			if e.ID == "" {
				continue
			}
			result.Secondary++
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true

			entry, err := r.enrich(ctx, e)
			if err != nil {
				return nil, err
			}
			if entry.SourceTag == models.SourceEnriched {
				result.Enriched++
			} else {
				result.Fallback++
			}
			merged = append(merged, entry)
		}
	}

	result.Entries = make([]models.CanonicalEntry, 0, len(merged))
	for _, e := range merged {
		if e.Availability.Restricted() {
			result.Excluded++
			r.logger.Debug("excluding restricted entry", "id", e.ID, "availability", e.Availability)
			continue
		}
		result.Entries = append(result.Entries, Normalize(e))
	}

	r.logger.Info("reconciled playlist", "url", url, "entries", len(result.Entries),
		"primary", result.Primary, "secondary", result.Secondary,
		"enriched", result.Enriched, "fallback", result.Fallback, "excluded", result.Excluded)
	return result, nil
}

func (r *Reconciler) fetch(ctx context.Context, p services.PlaylistFetcher, url string) (*models.PlaylistListing, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: provider not configured", shared.ErrServiceUnavailable)
	}
	listing, err := p.FetchPlaylist(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name(), err)
	}
	return listing, nil
}

// enrich looks fallback up on the primary provider. Lookup failures keep the fallback entry;
// only context cancellation is returned.
func (r *Reconciler) enrich(ctx context.Context, fallback models.CanonicalEntry) (models.CanonicalEntry, error) {
	fallback.SourceTag = models.SourceFallback
	if r.primary == nil {
		return fallback, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return fallback, err
	}

	found, err := r.primary.FetchTrack(ctx, fallback.ID)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fallback, err
		}
		r.logger.Debug("enrichment lookup failed", "id", fallback.ID, "error", err)
		return fallback, nil
	}
	if found == nil || strings.TrimSpace(found.Title) == "" {
		return fallback, nil
	}

	entry := found.FillFrom(fallback)
	entry.ID = fallback.ID
	entry.SourceTag = models.SourceEnriched
	return entry, nil
}

// Normalize applies field validation to an accepted entry.
func Normalize(e models.CanonicalEntry) models.CanonicalEntry {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		e.Title = UnknownTitle
	}

	e.Artist = strings.TrimSpace(e.Artist)
	if !ValidArtist(e.Artist) {
		if channel := strings.TrimSpace(e.Channel); ValidArtist(channel) {
			e.Artist = channel
		} else {
			e.Artist = UnknownArtist
		}
	}

	e.Album = strings.TrimSpace(e.Album)
	if e.Album == "" {
		e.Album = UnknownAlbum
	}
	return e
}

// ValidArtist rejects artist values that are really durations, numbers or single characters,
// all of which show up when a provider shifts columns.
func ValidArtist(artist string) bool {
	if utf8.RuneCountInString(artist) <= 1 {
		return false
	}
	if clockPattern.MatchString(artist) {
		return false
	}
	return strings.IndexFunc(artist, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0
}
