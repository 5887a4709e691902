package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/metrics"
)

const (
	// DefaultTTL bounds how long an abandoned session is kept.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often the janitor looks for expired sessions.
	DefaultSweepInterval = time.Minute
)

// Messages are the fixed replies the engine produces on its own.
type Messages struct {
	Cancelled string
	Failed    string
}

func (m Messages) withDefaults() Messages {
	if m.Cancelled == "" {
		m.Cancelled = "Cancelled. Nothing was submitted."
	}
	if m.Failed == "" {
		m.Failed = "Something went wrong, please try again later."
	}
	return m
}

// Options configures an Engine.
type Options struct {
	// Family scopes sessions; a chat has at most one session per family.
	Family   string
	TTL      time.Duration
	Messages Messages
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine runs registered flows against a Store.
type Engine struct {
	family   string
	store    Store
	ttl      time.Duration
	msgs     Messages
	now      func() time.Time
	locks    *keyedLock
	flowsMu  sync.RWMutex
	flows    map[string]runner
	janitorO sync.Once
}

// NewEngine builds an engine over store.
func NewEngine(store Store, opts Options) *Engine {
	if opts.Family == "" {
		opts.Family = "default"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		family: opts.Family,
		store:  store,
		ttl:    opts.TTL,
		msgs:   opts.Messages.withDefaults(),
		now:    opts.Now,
		locks:  newKeyedLock(),
		flows:  make(map[string]runner),
	}
}

// Register adds a flow to the engine. Flow ids must be unique.
func Register[T any](e *Engine, f Flow[T]) error {
	if err := f.validate(); err != nil {
		return err
	}
	e.flowsMu.Lock()
	defer e.flowsMu.Unlock()
	if _, exists := e.flows[f.ID]; exists {
		return fmt.Errorf("state: flow %s already registered", f.ID)
	}
	flow := f
	e.flows[f.ID] = &flow
	return nil
}

// MustRegister is Register that panics; used when wiring static flow tables.
func MustRegister[T any](e *Engine, f Flow[T]) {
	if err := Register(e, f); err != nil {
		panic(err)
	}
}

// Flows lists registered flow ids.
func (e *Engine) Flows() []string {
	e.flowsMu.RLock()
	defer e.flowsMu.RUnlock()
	ids := make([]string, 0, len(e.flows))
	for id := range e.flows {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) flow(id string) (runner, bool) {
	e.flowsMu.RLock()
	defer e.flowsMu.RUnlock()
	r, ok := e.flows[id]
	return r, ok
}

func (e *Engine) key(chat Chat) Key {
	return Key{Family: e.family, ChatID: chat.ID}
}

func (e *Engine) acquire(key Key, flowID string) (func(), error) {
	if !e.locks.TryLock(key) {
		metrics.FlowEvents.WithLabelValues(flowID, "busy").Inc()
		return nil, ErrBusy
	}
	return func() { e.locks.Unlock(key) }, nil
}

// Start begins flowID for chat, discarding any session the chat already has
// in this family, and returns the first prompt.
func (e *Engine) Start(ctx context.Context, chat Chat, flowID string) (Reply, error) {
	r, ok := e.flow(flowID)
	if !ok {
		return Reply{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}
	key := e.key(chat)
	release, err := e.acquire(key, flowID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	ctx = logger.WithFlow(ctx, flowID)
	if prev, err := e.load(ctx, key); err == nil {
		logger.Debug(ctx, logger.ComponentFlow, "flow.reset",
			slog.String("prev_flow", prev.FlowID),
			slog.String("state", string(prev.State)),
		)
	}

	st, fields, reply, err := r.first()
	if err != nil {
		return Reply{}, err
	}
	sess := Session{Key: key, FlowID: flowID, State: st, Fields: fields, UpdatedAt: e.now()}
	if err := e.store.Put(ctx, sess); err != nil {
		return Reply{}, fmt.Errorf("state: save session: %w", err)
	}
	metrics.FlowEvents.WithLabelValues(flowID, "start").Inc()
	logger.Info(ctx, logger.ComponentFlow, "flow.start",
		slog.String("status", "ok"),
		slog.String("state", string(st)),
	)
	return reply, nil
}

// Active returns the chat's live session, if any.
func (e *Engine) Active(ctx context.Context, chat Chat) (Session, bool) {
	s, err := e.load(ctx, e.key(chat))
	return s, err == nil
}

// Cancel tears down the chat's session. It reports false when the chat was idle.
func (e *Engine) Cancel(ctx context.Context, chat Chat) (Reply, bool, error) {
	key := e.key(chat)
	release, err := e.acquire(key, "")
	if err != nil {
		return Reply{}, false, err
	}
	defer release()

	sess, err := e.load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Reply{}, false, nil
	}
	if err != nil {
		return Reply{}, false, err
	}
	return e.cancel(logger.WithFlow(ctx, sess.FlowID), sess)
}

func (e *Engine) cancel(ctx context.Context, sess Session) (Reply, bool, error) {
	if err := e.store.Delete(ctx, sess.Key); err != nil {
		return Reply{}, true, fmt.Errorf("state: delete session: %w", err)
	}
	metrics.FlowEvents.WithLabelValues(sess.FlowID, "cancel").Inc()
	logger.Info(ctx, logger.ComponentFlow, "flow.cancel",
		slog.String("status", "cancelled"),
		slog.String("state", string(sess.State)),
	)
	return Reply{Text: e.msgs.Cancelled}, true, nil
}

// Handle feeds one input to the chat's active flow. handled is false when
// the chat is idle so the caller can route the input elsewhere.
//
// Validation failures are not errors: the reply names the expected format
// and the session is left untouched. A failing terminal action clears the
// session and yields the generic failure reply; the cause is logged.
func (e *Engine) Handle(ctx context.Context, chat Chat, in Input) (reply Reply, handled bool, err error) {
	key := e.key(chat)
	release, err := e.acquire(key, "")
	if err != nil {
		return Reply{}, false, err
	}
	defer release()

	sess, err := e.load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Reply{}, false, nil
	}
	if err != nil {
		return Reply{}, false, err
	}
	ctx = logger.WithFlow(ctx, sess.FlowID)

	if in.IsCancel() {
		return e.cancel(ctx, sess)
	}

	r, ok := e.flow(sess.FlowID)
	if !ok {
		_ = e.store.Delete(ctx, key)
		return Reply{Text: e.msgs.Failed}, true, fmt.Errorf("%w: %s", ErrUnknownFlow, sess.FlowID)
	}

	res, err := r.advance(ctx, chat, sess, in)
	if err != nil {
		_ = e.store.Delete(ctx, key)
		metrics.FlowEvents.WithLabelValues(sess.FlowID, "fail").Inc()
		logger.Error(ctx, logger.ComponentFlow, "flow.step",
			slog.String("status", "fail"),
			slog.String("state", string(sess.State)),
			slog.String("input", in.Kind.String()),
			slog.Any("err", err),
		)
		return Reply{Text: e.msgs.Failed}, true, nil
	}

	switch res.outcome {
	case outcomeStay:
		metrics.FlowEvents.WithLabelValues(sess.FlowID, "invalid").Inc()
		logger.Debug(ctx, logger.ComponentFlow, "flow.step",
			slog.String("status", "invalid"),
			slog.String("state", string(sess.State)),
			slog.String("input", in.Kind.String()),
			slog.Any("err", res.err),
		)
		return res.reply, true, nil

	case outcomeCancel:
		return e.cancel(ctx, sess)

	case outcomeAdvance:
		next := Session{Key: key, FlowID: sess.FlowID, State: res.state, Fields: res.fields, UpdatedAt: e.now()}
		if err := e.store.Put(ctx, next); err != nil {
			return Reply{}, true, fmt.Errorf("state: save session: %w", err)
		}
		metrics.FlowEvents.WithLabelValues(sess.FlowID, "step").Inc()
		logger.Debug(ctx, logger.ComponentFlow, "flow.step",
			slog.String("status", "ok"),
			slog.String("state", string(res.state)),
			slog.String("input", in.Kind.String()),
		)
		return res.reply, true, nil
	}

	// Terminal action ran; the session ends whatever the result.
	if err := e.store.Delete(ctx, key); err != nil {
		logger.Warn(ctx, logger.ComponentFlow, "flow.clear",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
	}
	if res.err != nil {
		metrics.FlowEvents.WithLabelValues(sess.FlowID, "fail").Inc()
		logger.Error(ctx, logger.ComponentFlow, "flow.finish",
			slog.String("status", "fail"),
			slog.Any("err", res.err),
		)
		return Reply{Text: e.msgs.Failed}, true, nil
	}
	metrics.FlowEvents.WithLabelValues(sess.FlowID, "complete").Inc()
	logger.Info(ctx, logger.ComponentFlow, "flow.finish", slog.String("status", "ok"))
	return res.reply, true, nil
}

// load returns the session for key, treating expired sessions as idle.
func (e *Engine) load(ctx context.Context, key Key) (Session, error) {
	sess, err := e.store.Get(ctx, key)
	if err != nil {
		return Session{}, err
	}
	if e.now().Sub(sess.UpdatedAt) > e.ttl {
		_ = e.store.Delete(ctx, key)
		metrics.FlowEvents.WithLabelValues(sess.FlowID, "expired").Inc()
		logger.Info(ctx, logger.ComponentFlow, "flow.expired",
			slog.String("flow", sess.FlowID),
			slog.String("state", string(sess.State)),
		)
		return Session{}, ErrNotFound
	}
	return sess, nil
}

// Sweep deletes sessions idle for longer than the TTL.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	n, err := e.store.Sweep(ctx, e.now().Add(-e.ttl))
	if err != nil {
		return 0, err
	}
	if live, err := e.store.Len(ctx); err == nil {
		metrics.Sessions.Set(float64(live))
	}
	return n, nil
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
// Only the first call starts a janitor.
func (e *Engine) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	e.janitorO.Do(func() {
		go func() {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					n, err := e.Sweep(ctx)
					if err != nil {
						logger.Warn(ctx, logger.ComponentFlow, "session.sweep",
							slog.String("status", "fail"),
							slog.Any("err", err),
						)
						continue
					}
					if n > 0 {
						logger.Info(ctx, logger.ComponentFlow, "session.sweep",
							slog.String("status", "ok"),
							slog.Int("swept", n),
						)
					}
				}
			}
		}()
	})
}
