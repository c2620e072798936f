//go:build !cgo

package tracking

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenWithoutCgo(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrCgoDisabled)
	assert.False(t, isUniqueViolation(errors.New("UNIQUE constraint failed")))

	var nilStore *Store
	_, err = nilStore.Favorites()
	assert.ErrorIs(t, err, ErrTrackerNotInited)
}
