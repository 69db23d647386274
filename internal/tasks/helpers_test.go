package tasks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/reconcile"
	"github.com/desertthunder/tunesync/internal/repositories"
	"github.com/desertthunder/tunesync/internal/services"
	"github.com/desertthunder/tunesync/internal/shared"
)

func setupTestCatalog(t *testing.T) *repositories.Catalog {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return repositories.NewCatalog(db)
}

type fakeReconciler struct {
	mu      sync.Mutex
	results map[string]*reconcile.Result
	errs    map[string]error
	calls   []string
	gate    chan struct{}
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{results: map[string]*reconcile.Result{}, errs: map[string]error{}}
}

func (f *fakeReconciler) set(url string, entries ...models.CanonicalEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[url] = &reconcile.Result{Title: "Title of " + url, Entries: entries}
}

func (f *fakeReconciler) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeReconciler) Reconcile(ctx context.Context, url string) (*reconcile.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	gate := f.gate
	res, ok := f.results[url]
	err := f.errs[url]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrSourceUnavailable, url)
	}
	cp := *res
	cp.Entries = append([]models.CanonicalEntry(nil), res.Entries...)
	return &cp, nil
}

func (f *fakeReconciler) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type countingRecorder struct {
	mu       sync.Mutex
	finished map[models.TrackStatus]int
	scans    int
	rejected int
	demoted  int
}

func (c *countingRecorder) TrackFinished(s models.TrackStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished == nil {
		c.finished = map[models.TrackStatus]int{}
	}
	c.finished[s]++
}

func (c *countingRecorder) ScanFinished(string, time.Duration, bool) {
	c.mu.Lock()
	c.scans++
	c.mu.Unlock()
}

func (c *countingRecorder) Rejected(string) {
	c.mu.Lock()
	c.rejected++
	c.mu.Unlock()
}

func (c *countingRecorder) Demoted(n int) {
	c.mu.Lock()
	c.demoted += n
	c.mu.Unlock()
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sleeps)
}

func newTestOrchestrator(t *testing.T, catalog *repositories.Catalog, r Reconciler, d services.Downloader, opts Options) (*Orchestrator, *sleepRecorder) {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	o := NewOrchestrator(catalog, r, d, opts)

	sleeper := &sleepRecorder{}
	o.sleep = sleeper.sleep
	t.Cleanup(o.Wait)
	return o, sleeper
}

func addPlaylist(t *testing.T, catalog *repositories.Catalog, url string) *models.Playlist {
	t.Helper()
	p, _, err := catalog.Playlists.Create(url, "")
	if err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	return p
}

func seedTracks(t *testing.T, catalog *repositories.Catalog, playlistID string, ids ...string) {
	t.Helper()
	entries := make([]models.CanonicalEntry, len(ids))
	for i, id := range ids {
		entries[i] = models.CanonicalEntry{ID: id, Title: "Title " + id, Artist: "Artist " + id}
	}
	if _, err := catalog.Tracks.UpsertPending(playlistID, entries, 0); err != nil {
		t.Fatalf("failed to seed tracks: %v", err)
	}
}

func mustTrack(t *testing.T, catalog *repositories.Catalog, id string) *models.Track {
	t.Helper()
	track, err := catalog.Tracks.Get(id)
	if err != nil {
		t.Fatalf("failed to get track %s: %v", id, err)
	}
	return track
}

func hasAction(t *testing.T, catalog *repositories.Catalog, trackID string, action models.Action) bool {
	t.Helper()
	entries, err := catalog.Actions.ForTrack(trackID)
	if err != nil {
		t.Fatalf("failed to read action log: %v", err)
	}
	for _, e := range entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func entries(ids ...string) []models.CanonicalEntry {
	out := make([]models.CanonicalEntry, len(ids))
	for i, id := range ids {
		out[i] = models.CanonicalEntry{ID: id, Title: "Title " + id, Artist: "Artist " + id, SourceTag: models.SourcePrimary}
	}
	return out
}
