package router

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/metrics"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"
	"github.com/m3rciful/penny/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// handleWithSummary tags the update with handlerName, runs fn and writes
// the handler summary.
func handleWithSummary(c tele.Context, handlerName string, start time.Time, statusOverride, outcomeOverride string, fn func() error, extras ...slog.Attr) error {
	tghelpers.WithHandler(c, handlerName)
	err := fn()
	logHandlerSummary(c, handlerName, start, statusOverride, outcomeOverride, err, extras...)
	return err
}

// logHandlerSummary writes one info line per handled update and records
// the handler metrics. Empty overrides derive from err.
func logHandlerSummary(c tele.Context, handlerName string, start time.Time, statusOverride, outcomeOverride string, err error, extras ...slog.Attr) {
	ctx := tghelpers.WithHandler(c, handlerName)
	msgs, kb := middleware.GetCounters(c)
	took := time.Since(start)

	derived := "ok"
	if err != nil {
		derived = "fail"
	}
	status, outcome := statusOverride, outcomeOverride
	if status == "" {
		status = derived
	}
	if outcome == "" {
		outcome = derived
	}
	metrics.Handlers.WithLabelValues(handlerName, outcome).Inc()
	metrics.HandlerLatency.WithLabelValues(handlerName).Observe(took.Seconds())

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Int64("duration_ms", logger.RoundMS(took).Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", errorCode(err)),
		)
	}
	if flow := logger.FlowFrom(ctx); flow != "" {
		attrs = append(attrs, slog.String("flow", flow))
	}
	attrs = append(attrs, extras...)
	logger.LogEvent(ctx, logger.Component(logger.ComponentTG), slog.LevelInfo, "handler.handled", attrs...)
}

// normalizeHandlerName turns a command or callback key into a metric-safe
// handler name.
func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

// errorCode classifies err for the summary line: an explicit Code(),
// Telegram API codes, timeouts, then the first named error type in the
// chain. Plain wrapped strings report ERROR.
func errorCode(err error) string {
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	var tgErr *tele.Error
	if errors.As(err, &tgErr) {
		return "TG_" + strconv.Itoa(tgErr.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "TIMEOUT"
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		t := reflect.TypeOf(e)
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if name := t.Name(); name != "" && !strings.HasPrefix(name, "wrap") && name != "errorString" {
			return strings.ToUpper(name)
		}
	}
	return "ERROR"
}
