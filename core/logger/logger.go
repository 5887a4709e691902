// Package logger is the process-wide structured logger: slog with a
// component/event schema, context-carried update identifiers and an
// asynchronous fan-out writer.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/penny/core/buildinfo"
	coreconfig "github.com/m3rciful/penny/core/config"
)

var (
	initOnce sync.Once

	state struct {
		sync.Mutex
		writer  *asyncWriter
		closers []io.Closer
		closed  bool
	}

	levelVar     slog.LevelVar
	debugSampler = newRatioSampler(defaultSampleNum, defaultSampleDen)
	traceAll     bool

	// L is the base logger; prefer the context-first helpers below.
	L *slog.Logger
)

// InitLogger configures the global logger from the logging section. Only the
// first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		opts := optionsFrom(cfg)
		levelVar.Set(opts.level)
		debugSampler.Set(opts.sampleNum, opts.sampleDen)
		traceAll = opts.trace

		sinks := []io.Writer{os.Stdout}
		if opts.file != "" {
			if f, ferr := openLogFile(opts.file); ferr != nil {
				// stdout still works, so a broken file sink is not fatal.
				log.Printf("logger: %v", ferr)
			} else {
				sinks = append(sinks, f)
				state.closers = append(state.closers, f)
			}
		}
		state.writer = newAsyncWriter(sinks, writerBufSize)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   state.writer,
			format:   opts.format,
			keyOrder: opts.keyOrder,
		}))
		slog.SetDefault(L)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", ComponentApp),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", opts.profile),
			slog.String("level", opts.level.String()),
		)
	})
	return nil
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Shutdown drains buffered output and closes file sinks. Safe to call twice.
func Shutdown() error {
	state.Lock()
	defer state.Unlock()
	if state.closed {
		return nil
	}
	state.closed = true

	var errs []error
	if state.writer != nil {
		errs = append(errs, state.writer.Close())
	}
	for _, c := range state.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background is the context for logs emitted outside any request.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes one record tagged with event. A nil logg falls back to the
// context logger, then to L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ensure(ctx), level, "", attrs...)
}

// Component returns L scoped to a component, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs through the component logger. Before InitLogger it uses
// whatever logger the context carries.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && strings.TrimSpace(component) != "" {
			logg = logg.With("component", strings.TrimSpace(component))
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug gates debug lines on hot paths (every update, every
// send). TRACE=1 lets all of them through.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.Allow()
}

// Status maps an outcome onto the status vocabulary of the schema.
func Status(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}

// RoundMS rounds to whole milliseconds; negative durations become zero.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// SummarizeStrings joins at most limit values and reports whether any were
// left out.
func SummarizeStrings(values []string, limit int) (string, bool) {
	if limit <= 0 {
		return "", len(values) > 0
	}
	if len(values) <= limit {
		return strings.Join(values, ", "), false
	}
	return strings.Join(values[:limit], ", "), true
}
