// Package server is the bot's public HTTP surface: Telegram and gateway
// webhooks, a health check and Prometheus metrics on one gorilla/mux router.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/metrics"
)

const (
	// HealthPath answers liveness probes.
	HealthPath = "/healthcheck"
	// MetricsPath exposes Prometheus metrics.
	MetricsPath = "/metrics"

	healthBody = "The bot is still running fine :)"
)

// Server owns the router and the listener.
type Server struct {
	router *mux.Router
	srv    *http.Server
	ln     net.Listener
	seq    atomic.Uint64
}

// New builds a server listening on addr with the health and metrics routes
// already in place.
func New(addr string) *Server {
	s := &Server{router: mux.NewRouter()}
	s.router.Use(s.instrument)
	s.router.HandleFunc(HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, healthBody)
	}).Methods(http.MethodGet, http.MethodHead)
	s.router.Handle(MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
	return s
}

// Mount attaches a webhook receiver. Only POST is routed to it.
func (s *Server) Mount(path string, h http.Handler) {
	s.router.Handle(path, h).Methods(http.MethodPost)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.srv.Addr
}

// Start binds the listener and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	logger.Info(ctx, logger.ComponentHTTP, "http.listen",
		slog.String("status", "ok"),
		slog.String("addr", ln.Addr().String()),
	)
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(logger.Background(), logger.ComponentHTTP, "http.serve",
				slog.String("status", "fail"),
				slog.Any("err", err),
			)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	logger.Info(ctx, logger.ComponentHTTP, "http.shutdown", slog.String("status", logger.Status(err)))
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument tags each request with a request id, counts it per route
// template and logs a one-line summary.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = "http-" + strconv.FormatUint(s.seq.Add(1), 36)
		}
		ctx := logger.WithRID(r.Context(), rid)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		took := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPLatency.WithLabelValues(r.Method, route).Observe(took.Seconds())
		if route == HealthPath || route == MetricsPath {
			return
		}
		logger.Info(ctx, logger.ComponentHTTP, "http.request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("code", rec.status),
			slog.Duration("duration", logger.RoundMS(took)),
		)
	})
}
