package oneshot

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when credentials are missing.
	ErrNotConfigured = errors.New("oneshot: client not configured")
	// ErrNotFound is returned by lookups that matched nothing.
	ErrNotFound = errors.New("oneshot: not found")
)

// GatewayError is a non-2xx response from the API.
type GatewayError struct {
	Op     string
	Status int
	Body   string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("oneshot: %s: status %d: %s", e.Op, e.Status, e.Body)
}

// IsGatewayError reports whether err wraps a *GatewayError.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
