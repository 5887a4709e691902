package netutil

import (
	"errors"
	"net"
	"net/http"
)

// ShouldRetry reports whether a failed idempotent call may be repeated: the
// connection was never established, or it timed out. Errors the server
// answered with are left to the caller, since the request may have had an
// effect.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	// *url.Error and *net.OpError both report Timeout through net.Error.
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return NotSent(err)
}

// NotSent reports whether err proves the request never reached the server:
// the dial failed or the host did not resolve. Only these are safe to repeat
// for requests with side effects.
func NotSent(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsNotFound)
}

// RetryableStatus reports whether an HTTP status marks a transient upstream
// failure. Only idempotent requests are retried on these.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
