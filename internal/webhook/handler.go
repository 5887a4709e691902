package webhook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/metrics"
	"github.com/m3rciful/penny/internal/oneshot"
)

const maxBody = 1 << 20

// Sink receives authenticated callbacks. Enqueue must not block on delivery.
type Sink interface {
	Enqueue(ctx context.Context, cb oneshot.Callback) error
}

// Handler serves POST /1shot. Authenticated payloads are queued and
// acknowledged with 200 before any notification is sent.
func Handler(v *Verifier, sink Sink) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
		if err != nil {
			reject(ctx, w, http.StatusRequestEntityTooLarge, "", err)
			return
		}
		cb, err := v.Parse(ctx, raw)
		if err != nil {
			var aerr *AuthenticationError
			if errors.As(err, &aerr) {
				reject(ctx, w, http.StatusUnauthorized, aerr.EndpointID, err)
				return
			}
			reject(ctx, w, http.StatusNotAcceptable, "", err)
			return
		}
		if err := sink.Enqueue(context.WithoutCancel(ctx), cb); err != nil {
			reject(ctx, w, http.StatusServiceUnavailable, cb.Data.TransactionID, err)
			return
		}
		logger.Info(ctx, logger.ComponentWebhook, "callback.accepted",
			slog.String("status", "ok"),
			slog.String("event_name", cb.EventName),
			slog.String("endpoint_id", cb.Data.TransactionID),
			slog.String("execution_id", cb.Data.TransactionExecutionID),
		)
		w.WriteHeader(http.StatusOK)
	})
}

func reject(ctx context.Context, w http.ResponseWriter, code int, endpoint string, err error) {
	metrics.Callbacks.WithLabelValues("rejected", "", http.StatusText(code)).Inc()
	logger.Warn(ctx, logger.ComponentWebhook, "callback.rejected",
		slog.String("status", "invalid"),
		slog.Int("code", code),
		slog.String("endpoint_id", endpoint),
		slog.Any("err", err),
	)
	http.Error(w, http.StatusText(code), code)
}
