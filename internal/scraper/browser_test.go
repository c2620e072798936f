package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutMillis(t *testing.T) {
	assert.Equal(t, float64(30000), timeoutMillis(context.Background(), browserTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ms := timeoutMillis(ctx, browserTimeout)
	assert.LessOrEqual(t, ms, float64(2000))
	assert.Greater(t, ms, float64(1000))

	expired, cancelExpired := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelExpired()
	assert.Equal(t, float64(1), timeoutMillis(expired, browserTimeout))
}

func TestPlaywrightFetchGivesUpWhilePageBusy(t *testing.T) {
	s := NewPlaywrightSession("febbox", "https://www.febbox.com", "token")
	s.mu.Lock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Fetch(ctx, "https://www.febbox.com/share/abc", "https://www.febbox.com/file/file_share_list")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	s.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Nil(t, s.pw, "an abandoned fetch does not start the browser")
}
