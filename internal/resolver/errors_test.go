package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderErrorRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindNotConfigured, false},
		{KindNotFound, false},
		{KindAuthExpired, false},
		{KindBlocked, false},
		{KindLayout, false},
		{KindNetwork, true},
		{KindTimeout, true},
		{KindRateLimited, true},
	}
	for _, tc := range tests {
		t.Run(tc.kind.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, NewError("x", tc.kind, nil).Retryable())
		})
	}
}

func TestStatusKind(t *testing.T) {
	assert.Equal(t, KindNotFound, StatusKind(http.StatusNotFound))
	assert.Equal(t, KindAuthExpired, StatusKind(http.StatusUnauthorized))
	assert.Equal(t, KindBlocked, StatusKind(http.StatusForbidden))
	assert.Equal(t, KindRateLimited, StatusKind(http.StatusTooManyRequests))
	assert.Equal(t, KindNetwork, StatusKind(http.StatusBadGateway))
	assert.Equal(t, KindTimeout, StatusKind(http.StatusGatewayTimeout))
	assert.Equal(t, KindLayout, StatusKind(http.StatusTeapot))
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("x", nil))

	typed := Errorf("", KindBlocked, "cloudflare")
	got := Classify("vidsrc", fmt.Errorf("wrapped: %w", typed))
	assert.Equal(t, KindBlocked, got.Kind)
	assert.Equal(t, "vidsrc", got.Provider)

	assert.Equal(t, KindTimeout, Classify("x", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindNetwork, Classify("x", &net.OpError{Op: "dial", Err: errors.New("refused")}).Kind)
	assert.Equal(t, KindNetwork, Classify("x", errors.New("unexpected EOF")).Kind)
	assert.Equal(t, KindLayout, Classify("x", errors.New("missing field")).Kind)
}

func TestProviderErrorUnwrap(t *testing.T) {
	sentinel := errors.New("token expired")
	err := NewError("fshare", KindAuthExpired, sentinel)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "fshare: auth expired: token expired", err.Error())
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("resolve: %w", Errorf("vidsrc", KindBlocked, "challenge"))
	assert.True(t, IsKind(wrapped, KindBlocked))
	assert.False(t, IsKind(wrapped, KindNetwork))
	assert.False(t, IsKind(errors.New("plain"), KindNotConfigured))
}
