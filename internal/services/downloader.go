package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// DownloaderOpts configures a [YTDLPDownloader].
type DownloaderOpts struct {
	Bin               string
	Dir               string
	AudioFormat       string
	AudioQuality      string
	FormatPreferences []string
	EmbedThumbnail    bool
	Timeout           time.Duration
}

// DownloaderOptsFromConfig maps the download section of the configuration.
func DownloaderOptsFromConfig(cfg shared.DownloadConfig) DownloaderOpts {
	return DownloaderOpts{
		Bin:               cfg.YTDLPPath,
		Dir:               cfg.Dir,
		AudioFormat:       cfg.AudioFormat,
		AudioQuality:      cfg.AudioQuality,
		FormatPreferences: cfg.FormatPreferences,
		EmbedThumbnail:    cfg.EmbedThumbnail,
		Timeout:           cfg.Timeout(),
	}
}

// YTDLPDownloader implements [Downloader] with yt-dlp and ffmpeg audio extraction.
type YTDLPDownloader struct {
	opts   DownloaderOpts
	run    CommandRunner
	tagger Tagger
	logger *log.Logger
}

// NewYTDLPDownloader creates a downloader. A nil runner uses [ExecRunner]; a nil tagger skips tagging.
func NewYTDLPDownloader(opts DownloaderOpts, run CommandRunner, tagger Tagger, logger *log.Logger) *YTDLPDownloader {
	if opts.Bin == "" {
		opts.Bin = defaultYTDLP
	}
	if opts.AudioFormat == "" {
		opts.AudioFormat = "mp3"
	}
	if len(opts.FormatPreferences) == 0 {
		opts.FormatPreferences = []string{"bestaudio/best"}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &YTDLPDownloader{opts: opts, run: run, tagger: tagger, logger: logger}
}

// Download resolves the video, tries each format selector in order and returns the hashed file.
//
// meta carries what reconciliation already knows; non-empty values win over yt-dlp's.
func (d *YTDLPDownloader) Download(ctx context.Context, trackID string, meta models.TrackMetadata) (*models.DownloadResult, error) {
	if err := os.MkdirAll(d.opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create download directory: %v", shared.ErrDownloadTransient, err)
	}

	info, err := d.inspect(ctx, trackID)
	if err != nil {
		return nil, err
	}
	if models.Availability(info.Availability).Restricted() {
		return nil, fmt.Errorf("%w: availability %s", shared.ErrDownloadRestricted, info.Availability)
	}

	resolved := info.metadata().Merge(meta)
	if channel := info.channel(); models.IsPlaceholder(resolved.Artist) && channel != "" {
		resolved.Artist = channel
	}

	base := d.fileBase(resolved.Title, trackID)

	var lastErr error
	for i, format := range d.opts.FormatPreferences {
		path, err := d.fetch(ctx, trackID, format, base)
		if err == nil {
			return d.finish(path, resolved)
		}
		if errors.Is(err, shared.ErrDownloadRestricted) || ctx.Err() != nil {
			return nil, err
		}

		d.logger.Warn("format attempt failed", "track", trackID, "format", format, "attempt", i+1, "error", err)
		lastErr = err
	}

	return nil, lastErr
}

func (d *YTDLPDownloader) inspect(ctx context.Context, trackID string) (*ytdlpInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	stdout, stderr, err := d.run(ctx, d.opts.Bin,
		"--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings", shared.VideoURL(trackID))
	if err != nil {
		return nil, classifyYTDLPError(err, stderr)
	}

	var info ytdlpInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("%w: failed to decode video info: %v", shared.ErrDownloadTransient, err)
	}
	return &info, nil
}

func (d *YTDLPDownloader) fetch(ctx context.Context, trackID, format, base string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	args := []string{
		"--format", format,
		"--extract-audio",
		"--audio-format", d.opts.AudioFormat,
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--output", filepath.Join(d.opts.Dir, base+".%(ext)s"),
		"--print", "after_move:filepath",
	}
	if q := audioQuality(d.opts.AudioQuality); q != "" {
		args = append(args, "--audio-quality", q)
	}
	if d.opts.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}
	args = append(args, shared.VideoURL(trackID))

	stdout, stderr, err := d.run(ctx, d.opts.Bin, args...)
	if err != nil {
		return "", classifyYTDLPError(err, stderr)
	}

	if path := lastLine(stdout); path != "" && shared.FileExists(path) {
		return path, nil
	}

	expected := filepath.Join(d.opts.Dir, base+"."+d.opts.AudioFormat)
	if shared.FileExists(expected) {
		return expected, nil
	}
	return "", fmt.Errorf("%w: yt-dlp reported success but no file was written", shared.ErrDownloadTransient)
}

// finish hashes the file as yt-dlp produced it and only then writes tags, so the content hash
// depends on the media alone and not on the title or artist a track was fetched under.
func (d *YTDLPDownloader) finish(path string, meta models.TrackMetadata) (*models.DownloadResult, error) {
	hash, size, err := shared.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrDownloadTransient, err)
	}

	if d.tagger != nil {
		if err := d.tagger.WriteTags(path, meta); err != nil {
			d.logger.Warn("failed to write tags", "path", path, "error", err)
		} else if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
	}

	return &models.DownloadResult{FilePath: path, ContentHash: hash, SizeBytes: size, Metadata: meta}, nil
}

// fileBase picks a file name stem from the title, adding the id when the plain name is taken.
func (d *YTDLPDownloader) fileBase(title, trackID string) string {
	base := shared.SanitizeFilename(title)
	if shared.FileExists(filepath.Join(d.opts.Dir, base+"."+d.opts.AudioFormat)) {
		base = shared.SanitizeFilename(fmt.Sprintf("%s [%s]", base, trackID))
	}
	return base
}

// audioQuality turns a bare bitrate such as "320" into yt-dlp's "320K".
// Values 0-10 are VBR levels and pass through unchanged.
func audioQuality(q string) string {
	q = strings.TrimSpace(q)
	if q == "" || strings.IndexFunc(q, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
		return q
	}
	if len(q) > 2 {
		return q + "K"
	}
	return q
}
