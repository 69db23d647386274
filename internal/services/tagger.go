package services

import (
	"fmt"

	"github.com/desertthunder/tunesync/internal/models"
	"go.senan.xyz/taglib"
)

const unknownAlbum = "Unknown Album"

// TaglibTagger writes tags with TagLib.
type TaglibTagger struct{}

// NewTaglibTagger creates a [TaglibTagger].
func NewTaglibTagger() *TaglibTagger {
	return &TaglibTagger{}
}

// WriteTags sets title, artist, album and year. Empty fields are left untouched, except the
// album which falls back to "Unknown Album".
func (TaglibTagger) WriteTags(path string, meta models.TrackMetadata) error {
	tags := tagMap(meta)
	if len(tags) == 0 {
		return nil
	}

	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}

func tagMap(meta models.TrackMetadata) map[string][]string {
	tags := make(map[string][]string)
	set := func(key, value string) {
		if value != "" {
			tags[key] = []string{value}
		}
	}

	album := meta.Album
	if album == "" {
		album = unknownAlbum
	}

	set(taglib.Title, meta.Title)
	set(taglib.Artist, meta.Artist)
	set(taglib.Album, album)
	set(taglib.Date, meta.Year)
	return tags
}
