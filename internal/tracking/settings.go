package tracking

import (
	"database/sql"
	"errors"
)

// Setting returns the stored value for key; ok is false when unset
func (s *Store) Setting(key string) (value string, ok bool, err error) {
	if err := s.ready(); err != nil {
		return "", false, err
	}
	err = s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting stores value under key
func (s *Store) SetSetting(key, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
