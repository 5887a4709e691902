package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"time"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// redact renders err with any bot token in a request URL masked.
func redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

// floodWait extracts the retry_after of a 429 answer.
func floodWait(err error) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(max(flood.RetryAfter, 1)) * time.Second, true
	}
	return 0, false
}

// errorKind buckets send failures for the sends counter and logs.
func errorKind(err error) string {
	if err == nil {
		return ""
	}
	if _, ok := floodWait(err); ok {
		return "flood"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "timeout"
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return "tls"
	}

	var apiErr *tele.Error
	switch {
	case errors.As(err, &apiErr) && apiErr.Code >= http.StatusInternalServerError:
		return "http_5xx"
	case apiErr != nil && apiErr.Code >= http.StatusBadRequest:
		return "http_4xx"
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		// the chat was upgraded to a supergroup
		return "http_4xx"
	}
	return "unknown"
}
