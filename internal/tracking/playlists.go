package tracking

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Playlist is a named, ordered list of catalog items
type Playlist struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Count     int       `json:"count"`
}

// PlaylistItem is one entry of a playlist
type PlaylistItem struct {
	PlaylistID int64     `json:"playlist_id"`
	Key        string    `json:"key"`
	Title      string    `json:"title"`
	Poster     string    `json:"poster"`
	Position   int       `json:"position"`
	AddedAt    time.Time `json:"added_at"`
}

// CreatePlaylist creates an empty playlist. Names are case-insensitively unique.
func (s *Store) CreatePlaylist(name string) (*Playlist, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("playlist name must not be empty")
	}

	now := time.Now()
	res, err := s.db.Exec(`INSERT INTO playlists (name, created_at) VALUES (?, ?)`, name, now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%q: %w", name, ErrPlaylistExists)
		}
		return nil, fmt.Errorf("insert playlist: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Playlist{ID: id, Name: name, CreatedAt: now}, nil
}

// RenamePlaylist changes the name of playlist id
func (s *Store) RenamePlaylist(id int64, name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("playlist name must not be empty")
	}

	res, err := s.db.Exec(`UPDATE playlists SET name = ? WHERE id = ?`, name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%q: %w", name, ErrPlaylistExists)
		}
		return err
	}
	return expectAffected(res, "playlist")
}

// DeletePlaylist removes a playlist and its items
func (s *Store) DeletePlaylist(id int64) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM playlist_items WHERE playlist_id = ?`, id); err != nil {
			return err
		}
		res, err := tx.Exec(`DELETE FROM playlists WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return expectAffected(res, "playlist")
	})
}

// Playlists lists all playlists with their item counts, oldest first
func (s *Store) Playlists() ([]Playlist, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT p.id, p.name, p.created_at, COUNT(i.item_key)
		FROM playlists p
		LEFT JOIN playlist_items i ON i.playlist_id = p.id
		GROUP BY p.id
		ORDER BY p.created_at, p.id`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var list []Playlist
	for rows.Next() {
		var p Playlist
		var ts int64
		if err := rows.Scan(&p.ID, &p.Name, &ts, &p.Count); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		p.CreatedAt = time.Unix(0, ts)
		list = append(list, p)
	}
	return list, rows.Err()
}

// PlaylistByName finds a playlist by its case-insensitive name
func (s *Store) PlaylistByName(name string) (*Playlist, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var p Playlist
	var ts int64
	err := s.db.QueryRow(`SELECT id, name, created_at FROM playlists WHERE name = ?`,
		strings.TrimSpace(name)).Scan(&p.ID, &p.Name, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("playlist %q: %w", name, ErrNotFound)
		}
		return nil, err
	}
	p.CreatedAt = time.Unix(0, ts)
	return &p, nil
}

// AddToPlaylist appends an item. Adding an item already present is a no-op.
func (s *Store) AddToPlaylist(id int64, item PlaylistItem) error {
	if err := s.ready(); err != nil {
		return err
	}
	if item.Key == "" || item.Title == "" {
		return fmt.Errorf("playlist item requires key and title")
	}

	return s.withTx(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM playlists WHERE id = ?`, id).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
		}

		var next int
		if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM playlist_items WHERE playlist_id = ?`,
			id).Scan(&next); err != nil {
			return err
		}

		_, err := tx.Exec(`INSERT INTO playlist_items (playlist_id, item_key, title, poster, position, added_at)
			VALUES (?,?,?,?,?,?)
			ON CONFLICT(playlist_id, item_key) DO NOTHING`,
			id, item.Key, item.Title, item.Poster, next, time.Now().UnixNano())
		return err
	})
}

// RemoveFromPlaylist removes an item and closes the gap in positions
func (s *Store) RemoveFromPlaylist(id int64, key string) error {
	if err := s.ready(); err != nil {
		return err
	}

	return s.withTx(func(tx *sql.Tx) error {
		var pos int
		err := tx.QueryRow(`SELECT position FROM playlist_items WHERE playlist_id = ? AND item_key = ?`,
			id, key).Scan(&pos)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("playlist item %q: %w", key, ErrNotFound)
			}
			return err
		}
		if _, err := tx.Exec(`DELETE FROM playlist_items WHERE playlist_id = ? AND item_key = ?`, id, key); err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE playlist_items SET position = position - 1
			WHERE playlist_id = ? AND position > ?`, id, pos)
		return err
	})
}

// PlaylistItems lists the items of a playlist in order
func (s *Store) PlaylistItems(id int64) ([]PlaylistItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT playlist_id, item_key, title, poster, position, added_at
		FROM playlist_items WHERE playlist_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]PlaylistItem, 0, avgRowsPerQuery)
	for rows.Next() {
		var it PlaylistItem
		var ts int64
		if err := rows.Scan(&it.PlaylistID, &it.Key, &it.Title, &it.Poster, &it.Position, &ts); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		it.AddedAt = time.Unix(0, ts)
		list = append(list, it)
	}
	return list, rows.Err()
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
