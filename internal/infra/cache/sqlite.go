// Package cache provides a SQLite-based caching layer for movie metadata
// lookups, so repeated queries for the same title do not hit the metadata
// API again.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the cache database.
	DefaultDBPath = "data/metadata.db"

	// DefaultTTL is how long a cached lookup stays fresh.
	DefaultTTL = 30 * 24 * time.Hour
)

// Movie is a cached metadata lookup result.
type Movie struct {
	Query       string
	TMDBID      int
	Title       string
	ReleaseDate string
	Overview    string
	PosterPath  string
	Rating      float64
	Runtime     int
	Genres      string
	CachedAt    time.Time
}

// DB represents the SQLite metadata cache database.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	ttl  time.Duration
}

// NewDB creates a new cache database instance.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{
		path: path,
		ttl:  DefaultTTL,
	}
}

// SetTTL overrides the freshness window.
func (d *DB) SetTTL(ttl time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ttl = ttl
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Metadata cache opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

// initSchema initializes the database schema.
func (d *DB) initSchema() error {
	currentVersion := d.getSchemaVersion()

	if currentVersion == "" {
		if err := d.createSchema(); err != nil {
			return err
		}
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	if currentVersion != CurrentSchemaVersion {
		log.Info().
			Str("current", currentVersion).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating cache schema")
		// Add migration logic here when schema changes
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	return nil
}

// createSchema creates all database tables.
func (d *DB) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS movies (
		query TEXT PRIMARY KEY,
		tmdb_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		release_date TEXT,
		overview TEXT,
		poster_path TEXT,
		rating REAL DEFAULT 0,
		runtime INTEGER DEFAULT 0,
		genres TEXT,
		cached_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// getSchemaVersion returns the stored schema version, or "" on a fresh
// database.
func (d *DB) getSchemaVersion() string {
	var version string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// setMeta stores a key/value pair in the meta table.
func (d *DB) setMeta(key, value string) error {
	_, err := d.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// normalizeQuery lowercases and collapses whitespace so lookups for the same
// title share a cache row.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Get returns the cached movie for a query, or false when absent or stale.
func (d *DB) Get(query string) (*Movie, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, false
	}

	row := d.db.QueryRow(`
		SELECT query, tmdb_id, title, release_date, overview, poster_path, rating, runtime, genres, cached_at
		FROM movies WHERE query = ?`, normalizeQuery(query))

	var m Movie
	var cachedAt string
	err := row.Scan(&m.Query, &m.TMDBID, &m.Title, &m.ReleaseDate, &m.Overview,
		&m.PosterPath, &m.Rating, &m.Runtime, &m.Genres, &cachedAt)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Warn().Err(err).Str("query", query).Msg("Cache read failed")
		}
		return nil, false
	}

	m.CachedAt, err = time.Parse(time.RFC3339, cachedAt)
	if err != nil {
		return nil, false
	}
	if time.Since(m.CachedAt) > d.ttl {
		return nil, false
	}

	return &m, true
}

// Put stores a lookup result, replacing any previous row for the query.
func (d *DB) Put(query string, m *Movie) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return fmt.Errorf("cache database not open")
	}

	cachedAt := m.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now()
	}

	_, err := d.db.Exec(`
		INSERT INTO movies (query, tmdb_id, title, release_date, overview, poster_path, rating, runtime, genres, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query) DO UPDATE SET
			tmdb_id = excluded.tmdb_id,
			title = excluded.title,
			release_date = excluded.release_date,
			overview = excluded.overview,
			poster_path = excluded.poster_path,
			rating = excluded.rating,
			runtime = excluded.runtime,
			genres = excluded.genres,
			cached_at = excluded.cached_at`,
		normalizeQuery(query), m.TMDBID, m.Title, m.ReleaseDate, m.Overview,
		m.PosterPath, m.Rating, m.Runtime, m.Genres, cachedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to cache movie: %w", err)
	}
	return nil
}

// Stats reports cache size for diagnostics.
type Stats struct {
	MovieCount int
}

// GetStats returns cache statistics.
func (d *DB) GetStats() (Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var stats Stats
	if d.db == nil {
		return stats, fmt.Errorf("cache database not open")
	}
	if err := d.db.QueryRow("SELECT COUNT(*) FROM movies").Scan(&stats.MovieCount); err != nil {
		return stats, err
	}
	return stats, nil
}

// Prune removes rows older than the freshness window.
func (d *DB) Prune() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return 0, fmt.Errorf("cache database not open")
	}

	cutoff := time.Now().Add(-d.ttl).Format(time.RFC3339)
	res, err := d.db.Exec("DELETE FROM movies WHERE cached_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Debug().Int64("removed", n).Msg("Pruned stale cache rows")
	}
	return n, nil
}
