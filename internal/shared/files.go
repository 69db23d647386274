package shared

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

const (
	maxFilenameLength = 200
	hashChunkSize     = 8192
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	repeatedWhitespace  = regexp.MustCompile(`\s+`)
)

// SanitizeFilename makes title safe to use as a file name on common filesystems.
//
// Reserved characters become underscores, whitespace runs collapse to one space, the
// result is cut to 200 characters and stripped of leading/trailing dots and spaces.
// An empty result becomes "unknown".
func SanitizeFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(title, "_")
	name = repeatedWhitespace.ReplaceAllString(name, " ")

	if runes := []rune(name); len(runes) > maxFilenameLength {
		name = string(runes[:maxFilenameLength])
	}

	name = strings.Trim(name, ". ")
	if name == "" {
		return "unknown"
	}
	return name
}

// HashFile computes the hex encoded SHA-256 digest of the file at path along with its size in bytes.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.CopyBuffer(h, f, make([]byte, hashChunkSize))
	if err != nil {
		return "", 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// FileExists reports whether path names an existing regular file.
//
// Errors other than "not exist" are treated as present so a flaky mount never demotes a track.
func FileExists(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if err != nil {
		return true
	}
	return !info.IsDir()
}
