// Package tracking persists user state (favorites, watch history, playlists,
// skip markers, search history, section order and settings) in SQLite.
package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrCgoDisabled      = errors.New("CGO disabled: sqlite tracking not available")
	ErrTrackerNotInited = errors.New("tracker not initialized")
	ErrNotFound         = errors.New("not found")
	ErrPlaylistExists   = errors.New("playlist already exists")
)

/*
────────────────────────────────────────────────────────────────────────────*
│  Settings                                                                  │
*────────────────────────────────────────────────────────────────────────────
*/
const (
	defaultCacheSize  = -20000    // 20MB
	mmapSize          = 268435456 // 256MB
	busyTimeout       = 5000      // ms
	walAutoCheckpoint = 1000      // pages
	maxOpenConns      = 5
	maxIdleConns      = 2
	avgRowsPerQuery   = 32
)

// Store is the handle to the local state database
type Store struct {
	db *sql.DB

	favUpsertPS  *sql.Stmt
	favDeletePS  *sql.Stmt
	favGetPS     *sql.Stmt
	progUpsertPS *sql.Stmt
	progGetPS    *sql.Stmt
	watchedPS    *sql.Stmt
}

/*
────────────────────────────────────────────────────────────────────────────*
│  Open                                                                      │
*────────────────────────────────────────────────────────────────────────────
*/

// Open opens (creating when needed) the database at dbPath
func Open(dbPath string) (*Store, error) {
	if !IsCgoEnabled {
		return nil, ErrCgoDisabled
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := dbPath
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(dbPath, "\\", "/")
	}
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&"+
			"_busy_timeout=%d&_cache_size=%d&_mmap_size=%d&_foreign_keys=on",
		path,
		walAutoCheckpoint,
		busyTimeout,
		defaultCacheSize,
		mmapSize,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := initializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	s := &Store{db: db}
	if err := s.prepareStatements(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func initializeDatabase(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS favorites (
			item_key  TEXT PRIMARY KEY,
			source    TEXT NOT NULL,
			title     TEXT NOT NULL,
			poster    TEXT NOT NULL DEFAULT '',
			kind      TEXT NOT NULL DEFAULT '',
			added_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS watch_progress (
			item_key    TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			poster      TEXT NOT NULL DEFAULT '',
			season      INTEGER NOT NULL DEFAULT 0,
			episode     INTEGER NOT NULL DEFAULT 0,
			episode_key TEXT NOT NULL DEFAULT '',
			position    INTEGER NOT NULL CHECK(position >= 0),
			duration    INTEGER NOT NULL CHECK(duration > 0),
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS watched_episodes (
			item_key    TEXT NOT NULL,
			episode_key TEXT NOT NULL,
			watched_at  INTEGER NOT NULL,
			PRIMARY KEY (item_key, episode_key)
		)`,
		`CREATE TABLE IF NOT EXISTS playlists (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS playlist_items (
			playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
			item_key    TEXT NOT NULL,
			title       TEXT NOT NULL,
			poster      TEXT NOT NULL DEFAULT '',
			position    INTEGER NOT NULL,
			added_at    INTEGER NOT NULL,
			PRIMARY KEY (playlist_id, item_key)
		)`,
		`CREATE TABLE IF NOT EXISTS skip_markers (
			series_key  TEXT PRIMARY KEY,
			intro_start INTEGER NOT NULL DEFAULT 0,
			intro_end   INTEGER NOT NULL DEFAULT 0,
			outro_start INTEGER NOT NULL DEFAULT 0,
			outro_end   INTEGER NOT NULL DEFAULT 0,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS country_skip_defaults (
			country     TEXT PRIMARY KEY,
			intro_start INTEGER NOT NULL DEFAULT 0,
			intro_end   INTEGER NOT NULL DEFAULT 0,
			outro_start INTEGER NOT NULL DEFAULT 0,
			outro_end   INTEGER NOT NULL DEFAULT 0,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS search_history (
			query   TEXT PRIMARY KEY,
			display TEXT NOT NULL,
			used_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS section_order (
			section  TEXT PRIMARY KEY,
			position INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_updated ON watch_progress(updated_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_favorites_added ON favorites(added_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_search_used ON search_history(used_at DESC)`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	if _, err := db.Exec(`PRAGMA optimize`); err != nil {
		return fmt.Errorf("initial optimization failed: %w", err)
	}
	return nil
}

func (s *Store) prepareStatements() error {
	var err error
	prepare := func(dst **sql.Stmt, name, query string) {
		if err != nil {
			return
		}
		*dst, err = s.db.Prepare(query)
		if err != nil {
			err = fmt.Errorf("%s preparation failed: %w", name, err)
		}
	}

	prepare(&s.favUpsertPS, "favorite upsert", `INSERT INTO favorites (
		item_key, source, title, poster, kind, added_at
	) VALUES (?,?,?,?,?,?)
	ON CONFLICT(item_key) DO UPDATE SET
		title = excluded.title,
		poster = excluded.poster,
		kind = excluded.kind`)

	prepare(&s.favDeletePS, "favorite delete", `DELETE FROM favorites WHERE item_key = ?`)

	prepare(&s.favGetPS, "favorite get", `SELECT
		item_key, source, title, poster, kind, added_at
	FROM favorites WHERE item_key = ?`)

	prepare(&s.progUpsertPS, "progress upsert", `INSERT INTO watch_progress (
		item_key, title, poster, season, episode, episode_key, position, duration, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?)
	ON CONFLICT(item_key) DO UPDATE SET
		title = excluded.title,
		poster = excluded.poster,
		season = excluded.season,
		episode = excluded.episode,
		episode_key = excluded.episode_key,
		position = excluded.position,
		duration = excluded.duration,
		updated_at = excluded.updated_at`)

	prepare(&s.progGetPS, "progress get", `SELECT
		item_key, title, poster, season, episode, episode_key, position, duration, updated_at
	FROM watch_progress WHERE item_key = ?`)

	prepare(&s.watchedPS, "watched upsert", `INSERT INTO watched_episodes (
		item_key, episode_key, watched_at
	) VALUES (?,?,?)
	ON CONFLICT(item_key, episode_key) DO UPDATE SET
		watched_at = excluded.watched_at`)

	return err
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return ErrTrackerNotInited
	}
	return nil
}

// withTx runs fn in a transaction, rolling back when it fails
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

/*
────────────────────────────────────────────────────────────────────────────*
│  Close                                                                     │
*────────────────────────────────────────────────────────────────────────────
*/

// Close releases prepared statements and the database handle
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	var finalErr error
	closeStmt := func(stmt *sql.Stmt, name string) {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				finalErr = fmt.Errorf("%s statement close error: %w", name, err)
			}
		}
	}

	closeStmt(s.favUpsertPS, "favorite upsert")
	closeStmt(s.favDeletePS, "favorite delete")
	closeStmt(s.favGetPS, "favorite get")
	closeStmt(s.progUpsertPS, "progress upsert")
	closeStmt(s.progGetPS, "progress get")
	closeStmt(s.watchedPS, "watched upsert")

	if err := s.db.Close(); err != nil {
		finalErr = fmt.Errorf("database close error: %w", err)
	}
	s.db = nil
	return finalErr
}
