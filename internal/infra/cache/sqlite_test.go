package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db := NewDB(filepath.Join(t.TempDir(), "metadata.db"))
	if err := db.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleMovie() *Movie {
	return &Movie{
		TMDBID:      1091,
		Title:       "The Thing",
		ReleaseDate: "1982-06-25",
		Overview:    "A research team in Antarctica is hunted by a shape-shifting alien.",
		PosterPath:  "/tpw7g5sYYnSJVhZZFEErpis5iFn.jpg",
		Rating:      8.2,
		Runtime:     109,
		Genres:      "Horror, Mystery, Science Fiction",
	}
}

func TestPutAndGet(t *testing.T) {
	db := openTestDB(t)

	if err := db.Put("The Thing", sampleMovie()); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, ok := db.Get("The Thing")
	if !ok {
		t.Fatal("Get() returned no hit for a freshly cached movie")
	}
	if got.TMDBID != 1091 || got.Title != "The Thing" {
		t.Errorf("Get() = %+v, want TMDBID 1091 / Title The Thing", got)
	}
	if got.CachedAt.IsZero() {
		t.Error("CachedAt should be stamped on Put")
	}
}

func TestGetMiss(t *testing.T) {
	db := openTestDB(t)

	if _, ok := db.Get("Nonexistent"); ok {
		t.Error("Get() hit for a query that was never cached")
	}
}

func TestQueryNormalization(t *testing.T) {
	db := openTestDB(t)

	if err := db.Put("The  Thing", sampleMovie()); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	if _, ok := db.Get("the thing"); !ok {
		t.Error("Lookups should be case and whitespace insensitive")
	}
}

func TestStaleEntryIsAMiss(t *testing.T) {
	db := openTestDB(t)

	m := sampleMovie()
	m.CachedAt = time.Now().Add(-DefaultTTL - time.Hour)
	if err := db.Put("The Thing", m); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	if _, ok := db.Get("The Thing"); ok {
		t.Error("Get() should treat an expired row as a miss")
	}
}

func TestPutReplacesExistingRow(t *testing.T) {
	db := openTestDB(t)

	if err := db.Put("The Thing", sampleMovie()); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	updated := sampleMovie()
	updated.Rating = 8.5
	if err := db.Put("The Thing", updated); err != nil {
		t.Fatalf("Put() replace failed: %v", err)
	}

	got, ok := db.Get("The Thing")
	if !ok {
		t.Fatal("Get() returned no hit after replace")
	}
	if got.Rating != 8.5 {
		t.Errorf("Rating = %v, want 8.5", got.Rating)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.MovieCount != 1 {
		t.Errorf("MovieCount = %d, want 1", stats.MovieCount)
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)

	stale := sampleMovie()
	stale.CachedAt = time.Now().Add(-DefaultTTL - time.Hour)
	if err := db.Put("Old", stale); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := db.Put("Fresh", sampleMovie()); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	removed, err := db.Prune()
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d rows, want 1", removed)
	}

	stats, _ := db.GetStats()
	if stats.MovieCount != 1 {
		t.Errorf("MovieCount after prune = %d, want 1", stats.MovieCount)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")

	db := NewDB(path)
	if err := db.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.Put("The Thing", sampleMovie()); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	db.Close()

	db2 := NewDB(path)
	if err := db2.Open(); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer db2.Close()

	if _, ok := db2.Get("The Thing"); !ok {
		t.Error("Cached data should survive reopen")
	}
}
