package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Favorite is a bookmarked catalog item
type Favorite struct {
	Key     string    `json:"key"`
	Source  string    `json:"source"`
	Title   string    `json:"title"`
	Poster  string    `json:"poster"`
	Kind    string    `json:"kind"`
	AddedAt time.Time `json:"added_at"`
}

// AddFavorite bookmarks an item. Re-adding keeps the original AddedAt.
func (s *Store) AddFavorite(f Favorite) error {
	if err := s.ready(); err != nil {
		return err
	}
	if f.Key == "" || f.Title == "" {
		return fmt.Errorf("favorite requires key and title")
	}
	if f.AddedAt.IsZero() {
		f.AddedAt = time.Now()
	}

	_, err := s.favUpsertPS.Exec(f.Key, f.Source, f.Title, f.Poster, f.Kind, f.AddedAt.UnixNano())
	return err
}

// RemoveFavorite deletes a bookmark; removing a missing key is not an error
func (s *Store) RemoveFavorite(key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.favDeletePS.Exec(key)
	return err
}

// IsFavorite reports whether key is bookmarked
func (s *Store) IsFavorite(key string) (bool, error) {
	f, err := s.GetFavorite(key)
	if err != nil {
		return false, err
	}
	return f != nil, nil
}

// GetFavorite returns the bookmark for key, or nil when absent
func (s *Store) GetFavorite(key string) (*Favorite, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var f Favorite
	var ts int64
	err := s.favGetPS.QueryRow(key).Scan(&f.Key, &f.Source, &f.Title, &f.Poster, &f.Kind, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query failed: %w", err)
	}
	f.AddedAt = time.Unix(0, ts)
	return &f, nil
}

// Favorites lists bookmarks, newest first
func (s *Store) Favorites() ([]Favorite, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT item_key, source, title, poster, kind, added_at
		FROM favorites ORDER BY added_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]Favorite, 0, avgRowsPerQuery)
	for rows.Next() {
		var f Favorite
		var ts int64
		if err := rows.Scan(&f.Key, &f.Source, &f.Title, &f.Poster, &f.Kind, &ts); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		f.AddedAt = time.Unix(0, ts)
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return list, nil
}
