package netutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("boom")))
	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, ShouldRetry(context.DeadlineExceeded))
}

func TestRetryableStatus(t *testing.T) {
	assert.True(t, RetryableStatus(http.StatusServiceUnavailable))
	assert.True(t, RetryableStatus(http.StatusTooManyRequests))
	assert.False(t, RetryableStatus(http.StatusBadRequest))
	assert.False(t, RetryableStatus(http.StatusInternalServerError))
}

func TestRetryTransportRetriesIdempotentOnStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{Backoff: time.Millisecond})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRetryTransportDoesNotRetryPostOnStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{Backoff: time.Millisecond})
	resp, err := client.Post(srv.URL, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryTransportReplaysBodyOnDialError(t *testing.T) {
	var calls atomic.Int32
	var lastBody string
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		n := calls.Add(1)
		buf := new(strings.Builder)
		if r.Body != nil {
			b := make([]byte, 64)
			k, _ := r.Body.Read(b)
			buf.Write(b[:k])
		}
		lastBody = buf.String()
		if n == 1 {
			return nil, &net.OpError{Op: "dial", Err: errors.New("refused")}
		}
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})

	client := NewClient(ClientOptions{Base: base, Backoff: time.Millisecond})
	resp, err := client.Post("http://example.invalid", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, `{"a":1}`, lastBody)
}

func TestNotSent(t *testing.T) {
	assert.False(t, NotSent(nil))
	assert.False(t, NotSent(context.DeadlineExceeded))
	assert.False(t, NotSent(&net.OpError{Op: "read", Err: errors.New("reset")}))
	assert.True(t, NotSent(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, NotSent(&net.DNSError{Err: "no such host", IsNotFound: true}))
}

func TestRetryTransportSendsSlowPostOnce(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(ClientOptions{ResponseTimeout: 50 * time.Millisecond, Backoff: time.Millisecond})
	_, err := client.Post(srv.URL+"/execute", "application/json", strings.NewReader(`{}`))
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRetryTransportRetriesSlowGet(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(ClientOptions{ResponseTimeout: 50 * time.Millisecond, Backoff: time.Millisecond})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.EqualValues(t, 2, calls.Load())
}
