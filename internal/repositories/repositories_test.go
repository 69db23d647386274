package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/shared"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

func createPlaylist(t *testing.T, c *Catalog, list string) *models.Playlist {
	t.Helper()
	p, _, err := c.Playlists.Create(shared.PlaylistURL(list), list)
	if err != nil {
		t.Fatalf("failed to create playlist: %v", err)
	}
	return p
}

func entries(ids ...string) []models.CanonicalEntry {
	out := make([]models.CanonicalEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.CanonicalEntry{ID: id, Title: "Title " + id, Artist: "Artist " + id, SourceTag: models.SourcePrimary})
	}
	return out
}

func TestPlaylistRepository(t *testing.T) {
	t.Run("Create is idempotent on source url", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewPlaylistRepository(db)

		url := shared.PlaylistURL("PL1")
		first, created, err := repo.Create(url, "")
		if err != nil {
			t.Fatalf("failed to create playlist: %v", err)
		}
		if !created || first.ID == "" || !first.Active {
			t.Fatalf("unexpected first create: %+v created=%v", first, created)
		}

		second, created, err := repo.Create(url, "Road Trip")
		if err != nil {
			t.Fatalf("failed to re-create playlist: %v", err)
		}
		if created {
			t.Error("second create should not insert")
		}
		if second.ID != first.ID {
			t.Errorf("expected same id %s, got %s", first.ID, second.ID)
		}
		if second.DisplayName != "Road Trip" {
			t.Errorf("expected display name to be filled, got %q", second.DisplayName)
		}
	})

	t.Run("Deactivate and reactivate", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewPlaylistRepository(db)

		p, _, _ := repo.Create(shared.PlaylistURL("PL1"), "one")
		repo.Create(shared.PlaylistURL("PL2"), "two")

		if err := repo.Deactivate(p.ID); err != nil {
			t.Fatalf("failed to deactivate: %v", err)
		}

		active, err := repo.List(true)
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(active) != 1 || active[0].DisplayName != "two" {
			t.Errorf("expected only playlist two active, got %+v", active)
		}

		all, _ := repo.List(false)
		if len(all) != 2 {
			t.Errorf("deactivated playlists should still be listed, got %d", len(all))
		}

		if err := repo.Deactivate(p.ID); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("deactivating twice should report not found, got %v", err)
		}

		again, created, err := repo.Create(p.SourceURL, "")
		if err != nil || created {
			t.Fatalf("re-adding should reactivate, got created=%v err=%v", created, err)
		}
		if !again.Active || again.DisplayName != "one" {
			t.Errorf("unexpected reactivated playlist: %+v", again)
		}
	})

	t.Run("TouchChecked", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		repo := NewPlaylistRepository(db)

		p, _, _ := repo.Create(shared.PlaylistURL("PL1"), "")
		if p.LastCheckedAt != nil {
			t.Fatal("new playlist should not have been checked")
		}

		if err := repo.TouchChecked(p.ID); err != nil {
			t.Fatalf("TouchChecked failed: %v", err)
		}

		got, _ := repo.Get(p.ID)
		if got.LastCheckedAt == nil {
			t.Error("last_checked_at should be set")
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		if _, err := NewPlaylistRepository(db).Get("missing"); !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("Summaries", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)

		p := createPlaylist(t, c, "PL1")
		createPlaylist(t, c, "PL2")
		if _, err := c.Tracks.UpsertPending(p.ID, entries("a", "b", "c"), 0); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		c.Tracks.Claim("a")
		c.Tracks.MarkDownloaded("a", FileRecord{Path: "/m/a.mp3", Hash: "h", Size: 1}, models.TrackMetadata{})

		summaries, err := c.Playlists.Summaries(true)
		if err != nil {
			t.Fatalf("Summaries failed: %v", err)
		}
		if len(summaries) != 2 {
			t.Fatalf("expected 2 summaries, got %d", len(summaries))
		}

		got := summaries[0].Counts
		if got.Total != 3 || got.Pending != 2 || got.Downloaded != 1 {
			t.Errorf("unexpected counts for PL1: %+v", got)
		}
		if summaries[1].Counts.Total != 0 {
			t.Errorf("PL2 should have no tracks, got %+v", summaries[1].Counts)
		}
	})
}

func TestTrackRepository(t *testing.T) {
	t.Run("UpsertPending inserts in discovery order", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")

		summary, err := c.Tracks.UpsertPending(p.ID, entries("c", "a", "b"), 0)
		if err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if len(summary.Inserted) != 3 {
			t.Fatalf("expected 3 inserted, got %+v", summary)
		}

		pending, err := c.Tracks.ListByStatus(models.StatusPending, p.ID)
		if err != nil {
			t.Fatalf("ListByStatus failed: %v", err)
		}

		var order []string
		for _, tr := range pending {
			order = append(order, tr.ID)
		}
		if fmt.Sprint(order) != "[c a b]" {
			t.Errorf("expected discovery order [c a b], got %v", order)
		}
	})

	t.Run("UpsertPending never moves resolved tracks", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")

		c.Tracks.UpsertPending(p.ID, entries("a", "b", "c", "d"), 0)
		c.Tracks.Claim("a")
		c.Tracks.MarkDownloaded("a", FileRecord{Path: "/m/a.mp3", Hash: "ha", Size: 10}, models.TrackMetadata{Title: "A"})
		c.Tracks.Claim("b")
		c.Tracks.MarkRestricted("b", "private")
		c.Tracks.Claim("c")

		summary, err := c.Tracks.UpsertPending(p.ID, entries("a", "b", "c", "d", "e"), 0)
		if err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if len(summary.Inserted) != 1 || summary.Inserted[0] != "e" {
			t.Errorf("expected only e inserted, got %v", summary.Inserted)
		}
		if summary.Unchanged != 4 {
			t.Errorf("expected 4 unchanged, got %d", summary.Unchanged)
		}

		want := map[string]models.TrackStatus{
			"a": models.StatusDownloaded,
			"b": models.StatusRestricted,
			"c": models.StatusProcessing,
			"d": models.StatusPending,
		}
		for id, status := range want {
			tr, _ := c.Tracks.Get(id)
			if tr.Status != status {
				t.Errorf("track %s: expected %s, got %s", id, status, tr.Status)
			}
		}

		a, _ := c.Tracks.Get("a")
		if a.FilePath != "/m/a.mp3" || a.ContentHash != "ha" {
			t.Errorf("downloaded file fields lost: %+v", a)
		}
	})

	t.Run("UpsertPending merges metadata by presence", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")

		c.Tracks.UpsertPending(p.ID, []models.CanonicalEntry{{ID: "a", Title: "A", Artist: "X", Album: "Album"}}, 0)
		c.Tracks.UpsertPending(p.ID, []models.CanonicalEntry{{ID: "a", Title: "A2"}}, 0)

		tr, _ := c.Tracks.Get("a")
		if tr.Metadata.Title != "A2" || tr.Metadata.Album != "Album" || tr.Metadata.Artist != "X" {
			t.Errorf("unexpected merged metadata: %+v", tr.Metadata)
		}
		if tr.Title != "A2" || tr.Uploader != "X" {
			t.Errorf("unexpected columns: title=%q uploader=%q", tr.Title, tr.Uploader)
		}
	})

	t.Run("UpsertPending keeps rich metadata over placeholders", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")

		rich := models.CanonicalEntry{ID: "a", Title: "Real Title", Artist: "Real Artist", Album: "Real Album", SourceTag: models.SourceEnriched}
		sparse := models.CanonicalEntry{ID: "a", Title: "Real Title", Artist: models.UnknownArtist, Album: models.UnknownAlbum, Year: "2019", SourceTag: models.SourceFallback}
		if _, err := c.Tracks.UpsertPending(p.ID, []models.CanonicalEntry{rich}, 0); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if _, err := c.Tracks.UpsertPending(p.ID, []models.CanonicalEntry{sparse}, 0); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		tr, _ := c.Tracks.Get("a")
		if tr.Metadata.Artist != "Real Artist" || tr.Metadata.Album != "Real Album" {
			t.Errorf("placeholders replaced stored metadata: %+v", tr.Metadata)
		}
		if tr.Metadata.Year != "2019" {
			t.Errorf("expected new year to be merged, got %q", tr.Metadata.Year)
		}
		if tr.Uploader != "Real Artist" {
			t.Errorf("placeholder replaced uploader column: %q", tr.Uploader)
		}
	})

	t.Run("tracks belong to every playlist that lists them", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		first := createPlaylist(t, c, "PL1")
		second := createPlaylist(t, c, "PL2")

		c.Tracks.UpsertPending(first.ID, entries("shared", "only-first"), 0)
		summary, err := c.Tracks.UpsertPending(second.ID, entries("shared", "only-second"), 0)
		if err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if len(summary.Inserted) != 1 || summary.Inserted[0] != "only-second" {
			t.Errorf("shared track must not be inserted twice, got %v", summary.Inserted)
		}

		pending, err := c.Tracks.ListByStatus(models.StatusPending, second.ID)
		if err != nil {
			t.Fatalf("ListByStatus failed: %v", err)
		}
		var ids []string
		for _, tr := range pending {
			ids = append(ids, tr.ID)
		}
		if fmt.Sprint(ids) != "[shared only-second]" {
			t.Errorf("expected the second playlist to list the shared track, got %v", ids)
		}

		if tr, _ := c.Tracks.Get("shared"); tr.PlaylistID != first.ID {
			t.Errorf("discovering playlist should be kept, got %s", tr.PlaylistID)
		}

		counts, _ := c.Tracks.Counts(second.ID)
		if counts.Total != 2 {
			t.Errorf("expected 2 tracks counted for the second playlist, got %+v", counts)
		}
		all, _ := c.Tracks.Counts("")
		if all.Total != 3 {
			t.Errorf("expected 3 tracks in the catalog, got %+v", all)
		}

		tracks, _ := c.Tracks.ListByPlaylist(first.ID)
		if len(tracks) != 2 {
			t.Errorf("expected 2 tracks for the first playlist, got %d", len(tracks))
		}
	})

	t.Run("UpsertPending requeues failed tracks within the ceiling", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")

		c.Tracks.UpsertPending(p.ID, entries("a"), 0)
		c.Tracks.Claim("a")
		c.Tracks.MarkFailed("a", "boom")

		summary, _ := c.Tracks.UpsertPending(p.ID, entries("a"), 2)
		if len(summary.Requeued) != 1 {
			t.Fatalf("expected requeue after 1 of 2 attempts, got %+v", summary)
		}

		c.Tracks.Claim("a")
		c.Tracks.MarkFailed("a", "boom again")

		summary, _ = c.Tracks.UpsertPending(p.ID, entries("a"), 2)
		if len(summary.Requeued) != 0 {
			t.Errorf("ceiling reached, track should stay failed: %+v", summary)
		}

		tr, _ := c.Tracks.Get("a")
		if tr.Status != models.StatusFailed || tr.Attempts != 2 || tr.LastError != "boom again" {
			t.Errorf("unexpected track: %+v", tr)
		}

		summary, _ = c.Tracks.UpsertPending(p.ID, entries("a"), 0)
		if len(summary.Requeued) != 1 {
			t.Errorf("unlimited retries should requeue, got %+v", summary)
		}
	})

	t.Run("Claim is exclusive", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")
		c.Tracks.UpsertPending(p.ID, entries("a"), 0)

		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			claims int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := c.Tracks.Claim("a")
				if err != nil {
					t.Errorf("claim failed: %v", err)
					return
				}
				if ok {
					mu.Lock()
					claims++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if claims != 1 {
			t.Errorf("expected exactly one successful claim, got %d", claims)
		}
	})

	t.Run("Finishing requires processing", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")
		c.Tracks.UpsertPending(p.ID, entries("a"), 0)

		if err := c.Tracks.MarkDownloaded("a", FileRecord{Path: "/x", Hash: "h"}, models.TrackMetadata{}); err == nil {
			t.Error("a pending track cannot be marked downloaded")
		}
		if err := c.Tracks.MarkFailed("a", "x"); err == nil {
			t.Error("a pending track cannot be marked failed")
		}

		c.Tracks.Claim("a")
		if err := c.Tracks.MarkDownloaded("a", FileRecord{Path: "/x"}, models.TrackMetadata{}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("missing hash should be rejected, got %v", err)
		}
	})

	t.Run("FindByHash prefers downloaded owners", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")
		c.Tracks.UpsertPending(p.ID, entries("a", "b", "c"), 0)

		c.Tracks.Claim("a")
		c.Tracks.MarkDuplicate("a", FileRecord{Path: "/m/b.mp3", Hash: "same"}, models.TrackMetadata{})
		c.Tracks.Claim("b")
		c.Tracks.MarkDownloaded("b", FileRecord{Path: "/m/b.mp3", Hash: "same"}, models.TrackMetadata{})

		owner, found, err := c.Tracks.FindByHash("same", "c")
		if err != nil || !found {
			t.Fatalf("expected owner, got found=%v err=%v", found, err)
		}
		if owner.ID != "b" {
			t.Errorf("expected downloaded owner b, got %s", owner.ID)
		}

		_, found, _ = c.Tracks.FindByHash("other", "c")
		if found {
			t.Error("unknown hash should not match")
		}

		_, found, _ = c.Tracks.FindByHash("same", "b")
		if !found {
			t.Error("duplicate a should still match when b is excluded")
		}
	})

	t.Run("Demote clears file fields", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")
		c.Tracks.UpsertPending(p.ID, entries("a", "b"), 0)
		c.Tracks.Claim("a")
		c.Tracks.MarkDownloaded("a", FileRecord{Path: "/m/a.mp3", Hash: "h", Size: 5}, models.TrackMetadata{})

		ok, err := c.Tracks.Demote("a")
		if err != nil || !ok {
			t.Fatalf("expected demotion, got ok=%v err=%v", ok, err)
		}

		tr, _ := c.Tracks.Get("a")
		if tr.Status != models.StatusPending || tr.FilePath != "" || tr.ContentHash != "" || tr.FileSize != 0 || tr.ResolvedAt != nil {
			t.Errorf("file fields not cleared: %+v", tr)
		}
		if err := tr.Validate(); err != nil {
			t.Errorf("demoted track should be valid: %v", err)
		}

		if ok, _ := c.Tracks.Demote("b"); ok {
			t.Error("pending tracks cannot be demoted")
		}
	})

	t.Run("ResetProcessing", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")
		c.Tracks.UpsertPending(p.ID, entries("a", "b", "c"), 0)
		c.Tracks.Claim("a")
		c.Tracks.Claim("b")

		ids, err := c.Tracks.ResetProcessing()
		if err != nil {
			t.Fatalf("ResetProcessing failed: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 recovered tracks, got %v", ids)
		}

		counts, _ := c.Tracks.Counts("")
		if counts.Processing != 0 || counts.Pending != 3 {
			t.Errorf("unexpected counts after reset: %+v", counts)
		}
	})

	t.Run("Recent and ListByFilePath", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()
		c := NewCatalog(db)
		p := createPlaylist(t, c, "PL1")
		c.Tracks.UpsertPending(p.ID, entries("a", "b", "c"), 0)
		for _, id := range []string{"a", "b"} {
			c.Tracks.Claim(id)
			c.Tracks.MarkDownloaded(id, FileRecord{Path: "/m/" + id + ".mp3", Hash: "h" + id}, models.TrackMetadata{})
		}
		c.Tracks.Claim("c")
		c.Tracks.MarkDuplicate("c", FileRecord{Path: "/m/a.mp3", Hash: "ha"}, models.TrackMetadata{})

		recent, err := c.Tracks.Recent(10)
		if err != nil {
			t.Fatalf("Recent failed: %v", err)
		}
		if len(recent) != 2 {
			t.Errorf("expected 2 downloaded tracks, got %d", len(recent))
		}

		sharing, _ := c.Tracks.ListByFilePath("/m/a.mp3")
		if len(sharing) != 2 {
			t.Errorf("expected owner and duplicate on /m/a.mp3, got %d", len(sharing))
		}

		withFiles, _ := c.Tracks.ListWithFiles()
		if len(withFiles) != 3 {
			t.Errorf("expected 3 tracks with files, got %d", len(withFiles))
		}
	})
}

func TestActionLogRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	repo := NewActionLogRepository(db)

	for _, a := range []models.Action{models.ActionDiscovered, models.ActionClaimed, models.ActionDownloaded} {
		if err := repo.Append(models.ActionLogEntry{TrackID: "a", PlaylistID: "p", Action: a}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	repo.Append(models.ActionLogEntry{TrackID: "b", Action: models.ActionFailed, Error: "boom"})

	history, err := repo.ForTrack("a")
	if err != nil {
		t.Fatalf("ForTrack failed: %v", err)
	}
	if len(history) != 3 || history[0].Action != models.ActionDiscovered || history[2].Action != models.ActionDownloaded {
		t.Errorf("unexpected history: %+v", history)
	}

	recent, _ := repo.Recent(2)
	if len(recent) != 2 || recent[0].TrackID != "b" || recent[0].Error != "boom" {
		t.Errorf("unexpected recent entries: %+v", recent)
	}

	if err := repo.Append(models.ActionLogEntry{TrackID: "a"}); err == nil {
		t.Error("entries without an action should be rejected")
	}
}
