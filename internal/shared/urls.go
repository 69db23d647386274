package shared

import (
	"fmt"
	"regexp"
	"strings"
)

var playlistIDPattern = regexp.MustCompile(`[&?]list=([^&]+)`)

// NormalizePlaylistURL trims the URL, unescapes HTML ampersands and checks that it points at a playlist.
func NormalizePlaylistURL(raw string) (string, error) {
	url := strings.TrimSpace(strings.ReplaceAll(raw, "&amp;", "&"))
	if url == "" {
		return "", fmt.Errorf("%w: url is required", ErrMissingArgument)
	}

	if !strings.Contains(url, "youtube.com/playlist") {
		return "", fmt.Errorf("%w: %s", ErrInvalidPlaylistURL, url)
	}

	if _, err := ExtractPlaylistID(url); err != nil {
		return "", err
	}
	return url, nil
}

// ExtractPlaylistID returns the value of the list query parameter in a playlist URL.
func ExtractPlaylistID(url string) (string, error) {
	m := playlistIDPattern.FindStringSubmatch(url)
	if len(m) < 2 || m[1] == "" {
		return "", fmt.Errorf("%w: no list parameter in %s", ErrInvalidPlaylistURL, url)
	}
	return m[1], nil
}

// PlaylistURL builds a canonical playlist URL from a playlist ID.
func PlaylistURL(id string) string {
	return "https://www.youtube.com/playlist?list=" + id
}

// VideoURL builds a watch URL for a video ID.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
