// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// MockProvider is a test double for a metadata provider.
//
// Playlists are keyed by URL and Tracks by id. Setting PlaylistErr fails every listing.
type MockProvider struct {
	ProviderName string
	Playlists    map[string]*models.PlaylistListing
	Tracks       map[string]*models.CanonicalEntry
	PlaylistErr  error

	mu          sync.Mutex
	TrackLookup []string
}

func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) FetchPlaylist(ctx context.Context, url string) (*models.PlaylistListing, error) {
	if m.PlaylistErr != nil {
		return nil, m.PlaylistErr
	}
	listing, ok := m.Playlists[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, url)
	}
	cp := *listing
	cp.Entries = append([]models.CanonicalEntry(nil), listing.Entries...)
	return &cp, nil
}

func (m *MockProvider) FetchTrack(ctx context.Context, id string) (*models.CanonicalEntry, error) {
	m.mu.Lock()
	m.TrackLookup = append(m.TrackLookup, id)
	m.mu.Unlock()

	if e, ok := m.Tracks[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
}

// Lookups returns the ids passed to FetchTrack so far.
func (m *MockProvider) Lookups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.TrackLookup...)
}

// MockDownloader writes a small file per track into Dir.
//
// Content decides the bytes written for an id (default "audio:<id>"); Errors makes an id fail.
// Gate, when set, blocks every download until it is closed or receives a value.
type MockDownloader struct {
	Dir     string
	Content map[string]string
	Errors  map[string]error
	Gate    chan struct{}

	mu       sync.Mutex
	calls    []string
	inFlight int
	maxSeen  int
}

func (m *MockDownloader) Download(ctx context.Context, trackID string, meta models.TrackMetadata) (*models.DownloadResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, trackID)
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err := m.Errors[trackID]; err != nil {
		return nil, err
	}

	content, ok := m.Content[trackID]
	if !ok {
		content = "audio:" + trackID
	}

	path := filepath.Join(m.Dir, trackID+".mp3")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}

	hash, size, err := shared.HashFile(path)
	if err != nil {
		return nil, err
	}
	return &models.DownloadResult{FilePath: path, ContentHash: hash, SizeBytes: size, Metadata: meta}, nil
}

// Calls returns the ids downloaded so far, in call order.
func (m *MockDownloader) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MaxConcurrent returns the highest number of simultaneous downloads observed.
func (m *MockDownloader) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeen
}

// FakeCommand is one scripted response of a [FakeRunner].
type FakeCommand struct {
	Match  string // substring that must appear in the joined argument list
	Stdout string
	Stderr string
	Err    error
	Write  map[string]string // files to create before returning, path -> content
}

// FakeRunner replays scripted command results and records invocations.
type FakeRunner struct {
	Commands []FakeCommand

	mu   sync.Mutex
	Args [][]string
}

// Run has the signature of services.CommandRunner.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.Args = append(f.Args, append([]string{name}, args...))
	f.mu.Unlock()

	joined := strings.Join(args, " ")
	for _, c := range f.Commands {
		if !strings.Contains(joined, c.Match) {
			continue
		}
		for path, content := range c.Write {
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return []byte(c.Stdout), []byte(c.Stderr), c.Err
	}
	return nil, []byte("ERROR: unexpected command"), errors.New("exit status 1")
}

// Invocations returns a copy of the recorded argument lists.
func (f *FakeRunner) Invocations() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.Args...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertFileMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("File should not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
