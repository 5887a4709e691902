// Package correlator turns settled gateway executions into chat
// notifications. Everything it needs travels in the execution memo, so a
// callback that arrives after a restart is handled the same way.
package correlator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/metrics"
	"github.com/m3rciful/penny/internal/memo"
	"github.com/m3rciful/penny/internal/oneshot"
)

const (
	// DefaultQueueSize bounds callbacks waiting for dispatch.
	DefaultQueueSize = 256
	// DefaultExplorerURL is the Sepolia block explorer.
	DefaultExplorerURL = "https://sepolia.etherscan.io"
	// TokenCreatedEvent is the deployer log carrying the new contract address.
	TokenCreatedEvent = "TokenCreated"
)

var (
	// ErrUnknownTxType is returned for memos whose type has no handler.
	ErrUnknownTxType = errors.New("correlator: unknown tx type")
	// ErrMissingMemo is returned for callbacks without a memo.
	ErrMissingMemo = errors.New("correlator: callback has no memo")
	// ErrQueueFull is returned by Enqueue when the queue is saturated.
	ErrQueueFull = errors.New("correlator: queue full")
	// ErrUnknownEvent is returned for event names other than success or failure.
	ErrUnknownEvent = errors.New("correlator: unknown event")
)

// Notifier delivers HTML-formatted messages to chats.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, html string) error
	SendPhoto(ctx context.Context, chatID int64, fileID, captionHTML string) error
}

// Options configures a Correlator.
type Options struct {
	QueueSize   int
	ExplorerURL string
	// AnnounceChatID, when non-zero, also receives new-token announcements.
	AnnounceChatID int64
}

// Correlator consumes callbacks from an in-process queue.
type Correlator struct {
	notify   Notifier
	queue    chan oneshot.Callback
	explorer string
	announce int64
}

// New builds a correlator delivering through n.
func New(n Notifier, opts Options) *Correlator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ExplorerURL == "" {
		opts.ExplorerURL = DefaultExplorerURL
	}
	return &Correlator{
		notify:   n,
		queue:    make(chan oneshot.Callback, opts.QueueSize),
		explorer: opts.ExplorerURL,
		announce: opts.AnnounceChatID,
	}
}

// Enqueue queues cb without blocking.
func (c *Correlator) Enqueue(_ context.Context, cb oneshot.Callback) error {
	select {
	case c.queue <- cb:
		return nil
	default:
		metrics.Callbacks.WithLabelValues(cb.EventName, "", "dropped").Inc()
		return ErrQueueFull
	}
}

// Run dispatches queued callbacks until ctx is done. A failing or panicking
// callback is logged and never stops the loop.
func (c *Correlator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cb := <-c.queue:
			c.safeDispatch(ctx, cb)
		}
	}
}

func (c *Correlator) safeDispatch(ctx context.Context, cb oneshot.Callback) {
	defer func() {
		if r := recover(); r != nil {
			metrics.Callbacks.WithLabelValues(cb.EventName, "", "panic").Inc()
			logger.Error(ctx, logger.ComponentCorrelator, "callback.panic",
				slog.String("status", "fail"),
				slog.String("execution_id", cb.Data.TransactionExecutionID),
				slog.Any("err", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	_ = c.Dispatch(ctx, cb)
}

// Dispatch handles one callback synchronously and reports why it was
// dropped, if it was.
func (c *Correlator) Dispatch(ctx context.Context, cb oneshot.Callback) error {
	attrs := []slog.Attr{
		slog.String("event_name", cb.EventName),
		slog.String("endpoint_id", cb.Data.TransactionID),
		slog.String("execution_id", cb.Data.TransactionExecutionID),
	}
	fail := func(txType string, err error) error {
		metrics.Callbacks.WithLabelValues(cb.EventName, txType, "dropped").Inc()
		logger.Error(ctx, logger.ComponentCorrelator, "callback.dispatch",
			append(attrs, slog.String("status", "dropped"), slog.String("tx_type", txType), slog.Any("err", err))...)
		return err
	}

	if cb.Data.Memo == "" {
		return fail("", ErrMissingMemo)
	}
	m, err := memo.Decode(cb.Data.Memo)
	if err != nil {
		return fail("", err)
	}
	ctx = logger.WithChat(ctx, m.Target())

	switch cb.EventName {
	case oneshot.EventExecutionSuccess:
		err = c.success(ctx, cb, m)
	case oneshot.EventExecutionFailure:
		err = c.failure(ctx, cb, m)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownEvent, cb.EventName)
	}
	if err != nil {
		return fail(m.TxType.String(), err)
	}
	metrics.Callbacks.WithLabelValues(cb.EventName, m.TxType.String(), "delivered").Inc()
	logger.Info(ctx, logger.ComponentCorrelator, "callback.dispatch",
		append(attrs, slog.String("status", "ok"), slog.String("tx_type", m.TxType.String()))...)
	return nil
}

func (c *Correlator) success(ctx context.Context, cb oneshot.Callback, m memo.Memo) error {
	switch m.TxType {
	case memo.TokenCreation:
		return c.tokenCreated(ctx, cb, m)
	case memo.TokenTransfer:
		return c.notify.SendText(ctx, m.Target(), c.transferText(cb, m))
	case memo.NativeTransfer:
		return c.notify.SendText(ctx, m.Target(), c.nativeText(cb, m))
	case memo.AdminAdded, memo.TokensMinted:
		return c.notify.SendText(ctx, m.Target(), c.genericText(cb, m))
	}
	return fmt.Errorf("%w: %s", ErrUnknownTxType, m.TxType)
}

func (c *Correlator) failure(ctx context.Context, cb oneshot.Callback, m memo.Memo) error {
	if !m.TxType.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownTxType, m.TxType)
	}
	return c.notify.SendText(ctx, m.Target(), failureText(m))
}

// tokenCreated sends the photo card when the memo has an image and falls
// back to plain text when the photo cannot be sent.
func (c *Correlator) tokenCreated(ctx context.Context, cb oneshot.Callback, m memo.Memo) error {
	address := ""
	if l, ok := cb.FindLog(TokenCreatedEvent); ok {
		address, _ = l.Arg(0)
	}
	if address == "" {
		logger.Warn(ctx, logger.ComponentCorrelator, "callback.token_address",
			slog.String("status", "missing"),
			slog.String("execution_id", cb.Data.TransactionExecutionID),
		)
	}
	card := c.tokenCard(m, address)

	image := ""
	if m.Token != nil {
		image = m.Token.ImageID
	}
	if c.announce != 0 {
		c.deliver(ctx, c.announce, image, card)
	}
	if err := c.deliver(ctx, m.Target(), image, card); err != nil {
		return err
	}
	return nil
}

func (c *Correlator) deliver(ctx context.Context, chatID int64, image, card string) error {
	if image != "" {
		err := c.notify.SendPhoto(ctx, chatID, image, card)
		if err == nil {
			return nil
		}
		logger.Warn(ctx, logger.ComponentCorrelator, "notify.photo",
			slog.String("status", "fail"),
			slog.Int64("target", chatID),
			slog.Any("err", err),
		)
	}
	return c.notify.SendText(ctx, chatID, card)
}
