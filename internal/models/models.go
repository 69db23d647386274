// package models defines the data model for the playlist sync engine
package models

import (
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for persistent models.
type Model interface {
	GetID() string   // GetID returns the unique identifier for this model
	Validate() error // Validate checks if the model's data is valid and returns an error if not
}

// TrackStatus is a node of the track state machine.
type TrackStatus string

const (
	StatusPending    TrackStatus = "pending"
	StatusProcessing TrackStatus = "processing"
	StatusDownloaded TrackStatus = "downloaded"
	StatusFailed     TrackStatus = "failed"
	StatusDuplicate  TrackStatus = "duplicate"
	StatusRestricted TrackStatus = "restricted"
)

// AllStatuses lists every status in display order.
var AllStatuses = []TrackStatus{
	StatusPending, StatusProcessing, StatusDownloaded, StatusDuplicate, StatusFailed, StatusRestricted,
}

// Valid reports whether s is a known status.
func (s TrackStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// HasFile reports whether tracks in this status carry a file path and content hash.
func (s TrackStatus) HasFile() bool {
	return s == StatusDownloaded || s == StatusDuplicate
}

// Terminal reports whether a reconciliation never moves the track back to pending.
// Failed tracks are not terminal: they are re-queued subject to the retry ceiling.
func (s TrackStatus) Terminal() bool {
	return s == StatusDownloaded || s == StatusDuplicate || s == StatusRestricted
}

// SourceTag records which provider produced a [CanonicalEntry].
type SourceTag string

const (
	SourcePrimary  SourceTag = "primary"
	SourceEnriched SourceTag = "enriched"
	SourceFallback SourceTag = "fallback"
)

// Availability is the access level the remote service reports for a track.
type Availability string

const (
	AvailabilityPublic         Availability = "public"
	AvailabilityUnlisted       Availability = "unlisted"
	AvailabilityPrivate        Availability = "private"
	AvailabilityPremiumOnly    Availability = "premium_only"
	AvailabilitySubscriberOnly Availability = "subscriber_only"
	AvailabilityNeedsAuth      Availability = "needs_auth"
)

// Restricted reports whether the track cannot be downloaded anonymously.
// An empty availability means the provider did not say and is treated as public.
func (a Availability) Restricted() bool {
	switch Availability(strings.ToLower(string(a))) {
	case AvailabilityPrivate, AvailabilityPremiumOnly, AvailabilitySubscriberOnly, AvailabilityNeedsAuth:
		return true
	}
	return false
}

// Placeholders filled in when no provider supplies a usable value.
const (
	UnknownArtist = "Unknown Artist"
	UnknownTitle  = "Unknown Title"
	UnknownAlbum  = "Unknown Album"
)

// IsPlaceholder reports whether v carries no real information: empty or one of the Unknown
// placeholders.
func IsPlaceholder(v string) bool {
	switch strings.TrimSpace(v) {
	case "", UnknownArtist, UnknownTitle, UnknownAlbum:
		return true
	}
	return false
}

// TrackMetadata holds descriptive fields gathered from providers.
// Every field is optional; see [TrackMetadata.Merge].
type TrackMetadata struct {
	Title        string    `json:"title,omitempty"`
	Artist       string    `json:"artist,omitempty"`
	Album        string    `json:"album,omitempty"`
	Year         string    `json:"year,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	Duration     int       `json:"duration,omitempty"`
	UploadDate   string    `json:"upload_date,omitempty"`
	Description  string    `json:"description,omitempty"`
	ViewCount    int64     `json:"view_count,omitempty"`
	Source       SourceTag `json:"source,omitempty"`
	Localization string    `json:"localization,omitempty"`
}

// Merge returns m overlaid with the non-empty fields of newer.
// A newer value never erases an existing one, and a placeholder only fills an empty field.
func (m TrackMetadata) Merge(newer TrackMetadata) TrackMetadata {
	pick := func(old, next string) string {
		if strings.TrimSpace(next) == "" {
			return old
		}
		if IsPlaceholder(next) && !IsPlaceholder(old) {
			return old
		}
		return next
	}

	out := m
	out.Title = pick(m.Title, newer.Title)
	out.Artist = pick(m.Artist, newer.Artist)
	out.Album = pick(m.Album, newer.Album)
	out.Year = pick(m.Year, newer.Year)
	out.Thumbnail = pick(m.Thumbnail, newer.Thumbnail)
	out.Channel = pick(m.Channel, newer.Channel)
	out.UploadDate = pick(m.UploadDate, newer.UploadDate)
	out.Description = pick(m.Description, newer.Description)
	out.Localization = pick(m.Localization, newer.Localization)
	out.Source = SourceTag(pick(string(m.Source), string(newer.Source)))
	if newer.Duration > 0 {
		out.Duration = newer.Duration
	}
	if newer.ViewCount > 0 {
		out.ViewCount = newer.ViewCount
	}
	return out
}

// CanonicalEntry is one track of the reconciled playlist view.
type CanonicalEntry struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Artist       string       `json:"artist"`
	Album        string       `json:"album,omitempty"`
	Year         string       `json:"year,omitempty"`
	Thumbnail    string       `json:"thumbnail,omitempty"`
	Channel      string       `json:"channel,omitempty"`
	Duration     int          `json:"duration,omitempty"`
	Availability Availability `json:"availability,omitempty"`
	SourceTag    SourceTag    `json:"source_tag,omitempty"`
}

// Metadata converts the entry into the structured metadata stored on a [Track].
func (e CanonicalEntry) Metadata() TrackMetadata {
	return TrackMetadata{
		Title:     e.Title,
		Artist:    e.Artist,
		Album:     e.Album,
		Year:      e.Year,
		Thumbnail: e.Thumbnail,
		Channel:   e.Channel,
		Duration:  e.Duration,
		Source:    e.SourceTag,
	}
}

// FillFrom copies fields that are empty on e from other.
func (e CanonicalEntry) FillFrom(other CanonicalEntry) CanonicalEntry {
	if e.Title == "" {
		e.Title = other.Title
	}
	if e.Artist == "" {
		e.Artist = other.Artist
	}
	if e.Album == "" {
		e.Album = other.Album
	}
	if e.Year == "" {
		e.Year = other.Year
	}
	if e.Thumbnail == "" {
		e.Thumbnail = other.Thumbnail
	}
	if e.Channel == "" {
		e.Channel = other.Channel
	}
	if e.Duration == 0 {
		e.Duration = other.Duration
	}
	if e.Availability == "" {
		e.Availability = other.Availability
	}
	return e
}

// Playlist is a remote playlist registered for synchronization.
type Playlist struct {
	ID            string     `json:"id"`
	Sequence      int64      `json:"sequence"`
	SourceURL     string     `json:"source_url"`
	DisplayName   string     `json:"display_name"`
	Active        bool       `json:"active"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (p *Playlist) GetID() string { return p.ID }

// Validate checks required fields.
func (p *Playlist) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("playlist id is required")
	}
	if p.SourceURL == "" {
		return fmt.Errorf("playlist source url is required")
	}
	return nil
}

// Track is one source track tracked through the download state machine.
type Track struct {
	ID           string        `json:"id"`
	Sequence     int64         `json:"sequence"`
	Title        string        `json:"title"`
	Uploader     string        `json:"uploader"`
	Duration     int           `json:"duration"`
	UploadDate   string        `json:"upload_date,omitempty"`
	PlaylistID   string        `json:"playlist_id"`
	FilePath     string        `json:"file_path,omitempty"`
	ContentHash  string        `json:"content_hash,omitempty"`
	FileSize     int64         `json:"file_size,omitempty"`
	Status       TrackStatus   `json:"status"`
	Metadata     TrackMetadata `json:"metadata"`
	Attempts     int           `json:"attempts"`
	LastError    string        `json:"last_error,omitempty"`
	DiscoveredAt time.Time     `json:"discovered_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	ResolvedAt   *time.Time    `json:"resolved_at,omitempty"`
}

func (t *Track) GetID() string { return t.ID }

// Validate checks required fields and the file invariants of the status.
func (t *Track) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("track id is required")
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown track status %q", t.Status)
	}
	if t.Status.HasFile() && (t.FilePath == "" || t.ContentHash == "") {
		return fmt.Errorf("track %s is %s without file path and hash", t.ID, t.Status)
	}
	if !t.Status.HasFile() && (t.FilePath != "" || t.ContentHash != "") {
		return fmt.Errorf("track %s is %s but carries a file", t.ID, t.Status)
	}
	return nil
}

// Action names an [ActionLogEntry].
type Action string

const (
	ActionDiscovered      Action = "discovered"
	ActionRequeued        Action = "requeued"
	ActionClaimed         Action = "claimed"
	ActionDownloaded      Action = "downloaded"
	ActionDuplicate       Action = "duplicate"
	ActionFailed          Action = "failed"
	ActionRestricted      Action = "restricted"
	ActionDemoted         Action = "demoted"
	ActionRecovered       Action = "recovered"
	ActionPlaylistError   Action = "playlist_error"
	ActionPlaylistChecked Action = "playlist_checked"
)

// ActionLogEntry is an append-only audit record. The state machine never reads it.
type ActionLogEntry struct {
	ID         int64     `json:"id"`
	TrackID    string    `json:"track_id,omitempty"`
	PlaylistID string    `json:"playlist_id,omitempty"`
	Action     Action    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StatusCounts holds per-status totals.
type StatusCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Downloaded int `json:"downloaded"`
	Duplicate  int `json:"duplicate"`
	Failed     int `json:"failed"`
	Restricted int `json:"restricted"`
}

// Add records n tracks in status s.
func (c *StatusCounts) Add(s TrackStatus, n int) {
	c.Total += n
	switch s {
	case StatusPending:
		c.Pending += n
	case StatusProcessing:
		c.Processing += n
	case StatusDownloaded:
		c.Downloaded += n
	case StatusDuplicate:
		c.Duplicate += n
	case StatusFailed:
		c.Failed += n
	case StatusRestricted:
		c.Restricted += n
	}
}

// Get returns the count for status s.
func (c StatusCounts) Get(s TrackStatus) int {
	switch s {
	case StatusPending:
		return c.Pending
	case StatusProcessing:
		return c.Processing
	case StatusDownloaded:
		return c.Downloaded
	case StatusDuplicate:
		return c.Duplicate
	case StatusFailed:
		return c.Failed
	case StatusRestricted:
		return c.Restricted
	}
	return 0
}

// PlaylistSummary pairs a playlist with its track counts.
type PlaylistSummary struct {
	Playlist
	Counts StatusCounts `json:"counts"`
}

// PlaylistListing is the ordered content of a playlist as one provider sees it.
type PlaylistListing struct {
	ID      string           `json:"id"`
	Title   string           `json:"title"`
	Entries []CanonicalEntry `json:"entries"`
}

// DownloadResult describes the file produced for a track.
type DownloadResult struct {
	FilePath    string        `json:"file_path"`
	ContentHash string        `json:"content_hash"`
	SizeBytes   int64         `json:"size_bytes"`
	Metadata    TrackMetadata `json:"metadata"` // fields resolved while downloading
}
