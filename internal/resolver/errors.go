package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/alvarorichard/Gostream/internal/models"
)

// ErrorKind classifies why a provider failed
type ErrorKind int

const (
	KindNotConfigured ErrorKind = iota
	KindNotFound
	KindAuthExpired
	KindBlocked
	KindLayout
	KindNetwork
	KindTimeout
	KindRateLimited
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindNotConfigured:
		return "not configured"
	case KindNotFound:
		return "not found"
	case KindAuthExpired:
		return "auth expired"
	case KindBlocked:
		return "blocked"
	case KindLayout:
		return "layout changed"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate limited"
	default:
		return "unknown"
	}
}

// ProviderError is the failure of one provider for one request
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether trying again may succeed
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindRateLimited:
		return true
	}
	return false
}

// IsKind reports whether err is a ProviderError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}

// NewError builds a ProviderError
func NewError(provider string, kind ErrorKind, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: err}
}

// Errorf builds a ProviderError with a formatted message
func Errorf(provider string, kind ErrorKind, format string, args ...any) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// StatusKind maps an HTTP status code to an error kind
func StatusKind(code int) ErrorKind {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return KindNotFound
	case code == http.StatusUnauthorized:
		return KindAuthExpired
	case code == http.StatusForbidden:
		return KindBlocked
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindNetwork
	default:
		return KindLayout
	}
}

// StatusError builds a ProviderError from an unexpected HTTP status
func StatusError(provider string, resp *http.Response) *ProviderError {
	host := ""
	if resp.Request != nil && resp.Request.URL != nil {
		host = resp.Request.URL.Host
	}
	return Errorf(provider, StatusKind(resp.StatusCode), "unexpected status %s from %s", resp.Status, host)
}

// Classify turns any error returned by a provider into a ProviderError.
// Errors already typed keep their kind.
func Classify(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		return pe
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(provider, KindTimeout, err)
	case errors.Is(err, context.Canceled):
		return NewError(provider, KindTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(provider, KindTimeout, err)
		}
		return NewError(provider, KindNetwork, err)
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return NewError(provider, KindNetwork, err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection reset") || strings.Contains(msg, "eof") {
		return NewError(provider, KindNetwork, err)
	}
	return NewError(provider, KindLayout, err)
}

// ErrNoStreams is matched by every ResolveError
var ErrNoStreams = errors.New("no streams found")

// ResolveError aggregates the failures of every provider tried for a ref
type ResolveError struct {
	Ref      models.MediaRef
	Failures []*ProviderError
}

// Error implements the error interface
func (e *ResolveError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("no provider supports %s", e.Ref)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("no streams found for %s (%s)", e.Ref, strings.Join(parts, "; "))
}

// Unwrap exposes ErrNoStreams and every provider failure to errors.Is/As
func (e *ResolveError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrNoStreams)
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Failure returns the failure recorded for provider, or nil
func (e *ResolveError) Failure(provider string) *ProviderError {
	for _, f := range e.Failures {
		if f.Provider == provider {
			return f
		}
	}
	return nil
}
