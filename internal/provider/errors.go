package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrRateLimited         = errors.New("provider rate limited")
	ErrInvalidCredentials  = errors.New("provider credentials invalid")
	ErrInvalidResponse     = errors.New("provider returned invalid response")
	ErrUnknownEngine       = errors.New("unknown engine")
)

// Transient reports whether err is worth retrying. Credential and
// malformed-response errors are not: retrying cannot succeed.
func Transient(err error) bool {
	return errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrRateLimited)
}

// classifyTransportError maps transport-level errors to sentinel errors.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// classifyStatus maps non-2xx HTTP statuses to sentinel errors.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrInvalidCredentials, code)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, code)
	case code >= 500:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, code)
	default:
		return fmt.Errorf("%w: unexpected status %d", ErrInvalidResponse, code)
	}
}
