package tracking

import (
	"database/sql"
	"fmt"
	"slices"
	"strings"
)

// DefaultSections is the home section order used until the user changes it
var DefaultSections = []string{
	"continue_watching",
	"favorites",
	"latest",
	"trending",
	"movies",
	"series",
	"anime",
	"playlists",
}

// SectionOrder returns the saved order. Default sections missing from it
// are appended in their default order.
func (s *Store) SectionOrder() ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT section FROM section_order ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	order := make([]string, 0, len(DefaultSections))
	for rows.Next() {
		var section string
		if err := rows.Scan(&section); err != nil {
			return nil, fmt.Errorf("row scan failed: %w", err)
		}
		order = append(order, section)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, section := range DefaultSections {
		if !slices.Contains(order, section) {
			order = append(order, section)
		}
	}
	return order, nil
}

// SetSectionOrder replaces the saved order
func (s *Store) SetSectionOrder(order []string) error {
	if err := s.ready(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(order))
	for _, section := range order {
		section = strings.TrimSpace(section)
		if section == "" {
			return fmt.Errorf("section name must not be empty")
		}
		if seen[section] {
			return fmt.Errorf("duplicate section %q", section)
		}
		seen[section] = true
	}

	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM section_order`); err != nil {
			return err
		}
		for i, section := range order {
			if _, err := tx.Exec(`INSERT INTO section_order (section, position) VALUES (?, ?)`,
				strings.TrimSpace(section), i); err != nil {
				return err
			}
		}
		return nil
	})
}

// MoveSection moves one section to index, clamped to the list bounds
func (s *Store) MoveSection(section string, index int) ([]string, error) {
	order, err := s.SectionOrder()
	if err != nil {
		return nil, err
	}

	from := slices.Index(order, section)
	if from < 0 {
		return nil, fmt.Errorf("section %q: %w", section, ErrNotFound)
	}
	order = slices.Delete(order, from, from+1)
	index = max(0, min(index, len(order)))
	order = slices.Insert(order, index, section)

	if err := s.SetSectionOrder(order); err != nil {
		return nil, err
	}
	return order, nil
}
