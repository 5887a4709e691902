// Package sender runs outbound Bot API calls off the update loop.
//
// Jobs are spread over lanes keyed by chat, so the replies of one
// conversation (and the gateway notifications that follow them) reach the
// user in the order they were queued while other chats proceed in parallel.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/metrics"
	"github.com/m3rciful/penny/core/netutil"
)

var (
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	ErrQueueFull   = errors.New("telegram sender: queue full")
)

// Options tunes the dispatcher. Zero values pick the defaults.
type Options struct {
	// QueueSize is shared evenly between the lanes.
	QueueSize int
	// Workers is the number of lanes, one goroutine each.
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one job including retries and flood waits.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes queued Bot API calls with retries.
type Dispatcher struct {
	opts  Options
	lanes []chan job
	next  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts the lane workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, lanes: make([]chan job, opts.Workers)}
	depth := max(opts.QueueSize/opts.Workers, 1)
	for i := range d.lanes {
		d.lanes[i] = make(chan job, depth)
		d.wg.Add(1)
		go d.work(d.lanes[i])
	}
	return d
}

// Enqueue queues run on the lane of the chat carried by ctx. Jobs without a
// chat are spread round robin. run may be called more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.lane(logger.ChatIDFrom(ctx)) <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		metrics.Sends.WithLabelValues(action, "queue_full").Inc()
		return ErrQueueFull
	}
}

func (d *Dispatcher) lane(chatID int64) chan job {
	n := uint64(len(d.lanes))
	if chatID == 0 {
		return d.lanes[d.next.Add(1)%n]
	}
	if chatID < 0 {
		// group chats have negative ids
		chatID = -chatID
	}
	return d.lanes[uint64(chatID)%n]
}

// ErrorCount is the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs and waits until the queued ones ran.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, l := range d.lanes {
		close(l)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work(lane <-chan job) {
	defer d.wg.Done()
	for j := range lane {
		d.execute(j)
	}
}

func (d *Dispatcher) execute(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attrs := sendAttrs(j)
	var err error
	attempt := 0
	for {
		attempt++
		if err = j.run(); err == nil {
			break
		}
		wait, retry := d.backoff(err, attempt)
		if !retry {
			break
		}
		logger.Debug(ctx, logger.ComponentSender, "send.retry",
			append(attrs,
				slog.Int("attempt", attempt),
				slog.Duration("backoff", wait),
				slog.String("cause", errorKind(err)),
			)...,
		)
		if werr := sleep(ctx, wait); werr != nil {
			err = errors.Join(err, werr)
			break
		}
	}

	attrs = append(attrs, slog.Int("attempts", attempt), slog.Duration("duration", time.Since(start)))
	if err == nil {
		metrics.Sends.WithLabelValues(j.action, "ok").Inc()
		if attempt > 1 {
			logger.Info(ctx, logger.ComponentSender, "send.recovered", attrs...)
		} else if logger.ShouldSampleDebug() {
			logger.Debug(ctx, logger.ComponentSender, "send.ok", attrs...)
		}
		return
	}

	d.errs.Add(1)
	kind := errorKind(err)
	metrics.Sends.WithLabelValues(j.action, kind).Inc()
	logger.Error(ctx, logger.ComponentSender, "send.fail",
		append(attrs,
			slog.String("status", "fail"),
			slog.String("err_code", kind),
			slog.String("err", redact(err)),
		)...,
	)
}

// backoff decides whether a failed attempt is repeated and after how long.
// Flood control waits as long as Telegram asks, within MaxDuration, and does
// not count against MaxRetries.
func (d *Dispatcher) backoff(err error, attempt int) (time.Duration, bool) {
	if after, ok := floodWait(err); ok {
		return after, after < d.opts.MaxDuration
	}
	if attempt > d.opts.MaxRetries || !netutil.ShouldRetry(err) {
		return 0, false
	}
	return d.opts.RetryBackoff * time.Duration(attempt), true
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func sendAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("action", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}
