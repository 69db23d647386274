// package watcher follows the download directory and reports audio files that disappear, so
// their tracks can be re-queued without waiting for the next validation pass.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunesync/internal/shared"
	"github.com/fsnotify/fsnotify"
)

// RemovalHandler demotes the tracks recorded at a removed path.
type RemovalHandler interface {
	HandleFileRemoved(ctx context.Context, path string) (int, error)
}

// Watcher turns remove and rename events in one directory into [RemovalHandler] calls.
//
// Events are held for Settle before they are handed on, so an editor or tagger that replaces a
// file in place does not demote its track.
type Watcher struct {
	dir     string
	handler RemovalHandler
	settle  time.Duration
	logger  *log.Logger

	handled atomic.Int64
	ready   chan struct{}
}

// New creates a Watcher for dir. A non-positive settle defaults to 500ms.
func New(dir string, handler RemovalHandler, settle time.Duration, logger *log.Logger) *Watcher {
	if settle <= 0 {
		settle = 500 * time.Millisecond
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Watcher{dir: dir, handler: handler, settle: settle, logger: logger, ready: make(chan struct{})}
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Handled returns the number of removals passed to the handler.
func (w *Watcher) Handled() int64 {
	return w.handled.Load()
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	close(w.ready)
	w.logger.Info("watching download directory", "dir", w.dir)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 || !isAudio(event.Name) {
				continue
			}
			pending[event.Name] = time.Now()

		case <-ticker.C:
			now := time.Now()
			for path, seen := range pending {
				if now.Sub(seen) < w.settle {
					continue
				}
				delete(pending, path)
				w.dispatch(ctx, path)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	n, err := w.handler.HandleFileRemoved(ctx, path)
	if err != nil {
		w.logger.Error("failed to handle removed file", "path", path, "error", err)
		return
	}
	w.handled.Add(1)
	if n > 0 {
		w.logger.Info("file removed, tracks re-queued", "path", path, "tracks", n)
	}
}

// isAudio skips the temporary and sidecar files yt-dlp creates next to the final file.
func isAudio(path string) bool {
	switch filepath.Ext(path) {
	case ".part", ".ytdl", ".tmp", ".json", ".jpg", ".webp", ".png":
		return false
	case "":
		return false
	}
	return true
}
