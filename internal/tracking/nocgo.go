//go:build !cgo

package tracking

// IsCgoEnabled indicates whether the SQLite driver is available
const IsCgoEnabled = false

// isUniqueViolation never matches: without cgo no statement reaches SQLite
func isUniqueViolation(error) bool {
	return false
}
