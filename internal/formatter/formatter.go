// package formatter exports a playlist's track catalog to CSV, Markdown, plain text and JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
)

// Catalog is one playlist with its tracks, as stored locally.
type Catalog struct {
	Playlist   models.Playlist     `json:"playlist"`
	Counts     models.StatusCounts `json:"counts"`
	Tracks     []*models.Track     `json:"tracks"`
	ExportedAt time.Time           `json:"exported_at"`
}

// Name returns the display name, falling back to the source URL.
func (c *Catalog) Name() string {
	if c.Playlist.DisplayName != "" {
		return c.Playlist.DisplayName
	}
	return c.Playlist.SourceURL
}

// Cover returns the first track thumbnail, used as the playlist cover.
func (c *Catalog) Cover() string {
	for _, t := range c.Tracks {
		if t.Metadata.Thumbnail != "" {
			return t.Metadata.Thumbnail
		}
	}
	return ""
}

func artist(t *models.Track) string {
	if t.Metadata.Artist != "" {
		return t.Metadata.Artist
	}
	return t.Uploader
}

// FormatDuration renders seconds as M:SS or H:MM:SS.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ExportToCSV converts a Catalog to CSV format with columns: ID, Title, Artist, Album, Year, Duration, Status, File, Hash
func ExportToCSV(c *Catalog) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Year", "Duration", "Status", "File", "Hash"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range c.Tracks {
		record := []string{
			track.ID,
			track.Title,
			artist(track),
			track.Metadata.Album,
			track.Metadata.Year,
			strconv.Itoa(track.Duration),
			string(track.Status),
			track.FilePath,
			track.ContentHash,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a Catalog to Markdown format with optional cover image
func ExportToMarkdown(c *Catalog, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", c.Name())

	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}

	fmt.Fprintf(&buf, "**Source**: %s\n\n", c.Playlist.SourceURL)
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(c.Tracks))
	fmt.Fprintf(&buf, "**Downloaded**: %d, **Duplicates**: %d, **Pending**: %d, **Failed**: %d, **Restricted**: %d\n\n",
		c.Counts.Downloaded, c.Counts.Duplicate, c.Counts.Pending, c.Counts.Failed, c.Counts.Restricted)

	buf.WriteString("## Tracks\n\n")
	for i, track := range c.Tracks {
		albumPart := ""
		if track.Metadata.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Metadata.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s] `%s`\n", i+1, artist(track), track.Title, albumPart,
			FormatDuration(track.Duration), track.Status)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a Catalog to plain text format
func ExportToText(c *Catalog) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", c.Name())
	fmt.Fprintf(&buf, "Source: %s\n", c.Playlist.SourceURL)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(c.Tracks))

	for i, track := range c.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, artist(track), track.Title)
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders the whole catalog as indented JSON.
func ExportToJSON(c *Catalog) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog: %w", err)
	}
	return data, nil
}

// DownloadImage downloads an image from the given URL and returns the raw bytes
func DownloadImage(url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty URL provided")
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return imageData, nil
}

// ToMetadataJSON generates a JSON representation of playlist metadata and counts (without tracks)
func ToMetadataJSON(c *Catalog) ([]byte, error) {
	meta := struct {
		Playlist models.Playlist     `json:"playlist"`
		Counts   models.StatusCounts `json:"counts"`
	}{c.Playlist, c.Counts}
	return json.MarshalIndent(meta, "", "  ")
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport exports a catalog to CSV format with accompanying metadata JSON file.
//
// Defaults to playlist ID as the base filename & creates {base}_tracks.csv and {base}_metadata.json
func WriteCSVExport(c *Catalog, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = c.Playlist.ID
	}

	csvData, err := ExportToCSV(c)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	tracksFile := baseFilepath + "_tracks.csv"
	if err := os.WriteFile(tracksFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	metadataJSON, err := ToMetadataJSON(c)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}

	metadataFile := baseFilepath + "_metadata.json"
	if err := os.WriteFile(metadataFile, metadataJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{
		TracksFile:   tracksFile,
		MetadataFile: metadataFile,
	}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport exports a catalog to Markdown format in a dedicated directory.
//
// Directory name defaults to the playlist ID.
// The imageURL parameter is optional - if provided, attempts to download the cover image.
// Creates a directory structure: {dir}/README.md and optionally {dir}/cover.jpg
func WriteMarkdownExport(c *Catalog, outputDir string, imageURL string) (*MarkdownExportResult, error) {
	if outputDir == "" {
		outputDir = c.Playlist.ID
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{
		Directory: outputDir,
		Files:     []string{},
	}

	var coverImageFilename string
	if imageURL != "" {
		if imageData, err := DownloadImage(imageURL); err == nil {
			coverImagePath := filepath.Join(outputDir, "cover.jpg")
			if err := os.WriteFile(coverImagePath, imageData, 0644); err == nil {
				coverImageFilename = "cover.jpg"
				result.CoverImage = coverImagePath
				result.Files = append(result.Files, coverImagePath)
			}
		}
	}

	mdData, err := ExportToMarkdown(c, coverImageFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}

	mdFile := filepath.Join(outputDir, "README.md")
	if err := os.WriteFile(mdFile, mdData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}

	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport exports a catalog to plain text format.
//
// Defaults to {playlist.ID}_tracks.txt as the filename.
func WriteTextExport(c *Catalog, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.txt", c.Playlist.ID)
	}

	textData, err := ExportToText(c)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(path, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return path, nil
}

// WriteJSONExport writes the catalog as JSON. Defaults to {playlist.ID}.json.
func WriteJSONExport(c *Catalog, path string) (string, error) {
	if path == "" {
		path = c.Playlist.ID + ".json"
	}

	data, err := ExportToJSON(c)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}
	return path, nil
}

// ManifestEntry is the outcome of exporting one playlist.
type ManifestEntry struct {
	PlaylistID string   `json:"playlist_id"`
	Name       string   `json:"name"`
	Success    bool     `json:"success"`
	Files      []string `json:"files,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Manifest summarizes a multi-playlist export.
type Manifest struct {
	Format     string          `json:"format"`
	OutputDir  string          `json:"output_dir"`
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Entries    []ManifestEntry `json:"entries"`
	CreatedAt  time.Time       `json:"created_at"`
}

// WriteManifest writes m as indented JSON to path.
func WriteManifest(m *Manifest, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
