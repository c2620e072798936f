//go:build cgo

package tracking

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// IsCgoEnabled indicates whether the SQLite driver is available
const IsCgoEnabled = true

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
