package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	// watchedThreshold marks an episode as watched once this share was played
	watchedThreshold = 0.90
	// finishedThreshold hides a movie from continue-watching
	finishedThreshold = 0.95
)

// Progress is the last playback position of an item
type Progress struct {
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	Poster     string    `json:"poster"`
	Season     int       `json:"season"`
	Episode    int       `json:"episode"`
	EpisodeKey string    `json:"episode_key"`
	Position   int       `json:"position"`
	Duration   int       `json:"duration"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Ratio is the played share of the current episode or movie
func (p Progress) Ratio() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return float64(p.Position) / float64(p.Duration)
}

// UpdateProgress records the playback position. Episodes played past 90%
// are added to the watched set.
func (s *Store) UpdateProgress(p Progress) error {
	if err := s.ready(); err != nil {
		return err
	}
	if p.Key == "" {
		return fmt.Errorf("progress requires an item key")
	}
	if p.Duration <= 0 {
		return fmt.Errorf("invalid duration value (%d): must be greater than 0", p.Duration)
	}
	if p.Position < 0 {
		p.Position = 0
	}
	if p.Position > p.Duration {
		p.Position = p.Duration
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}

	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Stmt(s.progUpsertPS).Exec(
			p.Key,
			p.Title,
			p.Poster,
			p.Season,
			p.Episode,
			p.EpisodeKey,
			p.Position,
			p.Duration,
			p.UpdatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("progress upsert failed: %w", err)
		}

		if p.EpisodeKey != "" && p.Ratio() >= watchedThreshold {
			if _, err := tx.Stmt(s.watchedPS).Exec(p.Key, p.EpisodeKey, p.UpdatedAt.UnixNano()); err != nil {
				return fmt.Errorf("mark watched failed: %w", err)
			}
		}
		return nil
	})
}

// GetProgress returns the stored position for key, or nil when absent
func (s *Store) GetProgress(key string) (*Progress, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	p, err := scanProgress(s.progGetPS.QueryRow(key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return p, nil
}

// ContinueWatching lists unfinished items, most recently played first.
// Series stay listed after an episode ends so the next one can be picked.
func (s *Store) ContinueWatching(limit int) ([]Progress, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT
		item_key, title, poster, season, episode, episode_key, position, duration, updated_at
	FROM watch_progress
	WHERE episode > 0 OR position < duration * ?
	ORDER BY updated_at DESC
	LIMIT ?`, finishedThreshold, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]Progress, 0, limit)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		list = append(list, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return list, nil
}

// RemoveProgress forgets the playback position of key
func (s *Store) RemoveProgress(key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM watch_progress WHERE item_key = ?`, key)
	return err
}

// ClearHistory forgets the position and the watched set of key
func (s *Store) ClearHistory(key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM watch_progress WHERE item_key = ?`, key); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM watched_episodes WHERE item_key = ?`, key)
		return err
	})
}

// MarkWatched adds an episode to the watched set of an item
func (s *Store) MarkWatched(itemKey, episodeKey string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.watchedPS.Exec(itemKey, episodeKey, time.Now().UnixNano())
	return err
}

// UnmarkWatched removes an episode from the watched set
func (s *Store) UnmarkWatched(itemKey, episodeKey string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM watched_episodes WHERE item_key = ? AND episode_key = ?`, itemKey, episodeKey)
	return err
}

// WatchedEpisodes returns the watched set of an item
func (s *Store) WatchedEpisodes(itemKey string) (map[string]bool, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT episode_key FROM watched_episodes WHERE item_key = ?`, itemKey)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	watched := make(map[string]bool)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		watched[key] = true
	}
	return watched, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProgress(row rowScanner) (*Progress, error) {
	var p Progress
	var ts int64
	if err := row.Scan(
		&p.Key,
		&p.Title,
		&p.Poster,
		&p.Season,
		&p.Episode,
		&p.EpisodeKey,
		&p.Position,
		&p.Duration,
		&ts,
	); err != nil {
		return nil, err
	}
	p.UpdatedAt = time.Unix(0, ts)
	return &p, nil
}
