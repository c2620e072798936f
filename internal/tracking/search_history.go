package tracking

import (
	"fmt"
	"strings"
	"time"
)

// maxSearchHistory caps the number of remembered queries
const maxSearchHistory = 50

// SearchEntry is one remembered search query
type SearchEntry struct {
	Query  string    `json:"query"`
	UsedAt time.Time `json:"used_at"`
}

func searchKey(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// AddSearch remembers a query. Repeating a query (case and spacing
// insensitive) moves it to the top. Only the latest 50 are kept.
func (s *Store) AddSearch(query string) error {
	if err := s.ready(); err != nil {
		return err
	}
	key := searchKey(query)
	if key == "" {
		return nil
	}
	display := strings.Join(strings.Fields(query), " ")

	_, err := s.db.Exec(`INSERT INTO search_history (query, display, used_at) VALUES (?,?,?)
		ON CONFLICT(query) DO UPDATE SET
			display = excluded.display,
			used_at = excluded.used_at`, key, display, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert search: %w", err)
	}

	_, err = s.db.Exec(`DELETE FROM search_history WHERE query NOT IN (
		SELECT query FROM search_history ORDER BY used_at DESC LIMIT ?)`, maxSearchHistory)
	return err
}

// RecentSearches lists remembered queries, newest first
func (s *Store) RecentSearches(limit int) ([]SearchEntry, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxSearchHistory {
		limit = maxSearchHistory
	}

	rows, err := s.db.Query(`SELECT display, used_at FROM search_history
		ORDER BY used_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	list := make([]SearchEntry, 0, limit)
	for rows.Next() {
		var e SearchEntry
		var ts int64
		if err := rows.Scan(&e.Query, &ts); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		e.UsedAt = time.Unix(0, ts)
		list = append(list, e)
	}
	return list, rows.Err()
}

// DeleteSearch forgets one query
func (s *Store) DeleteSearch(query string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM search_history WHERE query = ?`, searchKey(query))
	return err
}

// ClearSearches forgets every query
func (s *Store) ClearSearches() error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM search_history`)
	return err
}
