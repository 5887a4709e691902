package helpers

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var outbox atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes the send helpers through d. With nil they call the
// Bot API inline, which is what tests rely on.
func SetDispatcher(d *sender.Dispatcher) {
	outbox.Store(d)
}

// deliver runs call on the chat's send lane. A saturated or stopped queue
// degrades to an inline call rather than dropping the reply.
func deliver(c tele.Context, action, endpoint string, call func() error) error {
	d := outbox.Load()
	if d == nil {
		return call()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, action, endpoint, call)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.ComponentSender, "queue.fallback",
			slog.String("action", action),
			slog.String("status", "retry"),
			slog.Any("cause", err),
		)
		return call()
	}
	return err
}

// SendText sends text as is. The first opts, if any, apply.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var o *tele.SendOptions
	if len(opts) > 0 && opts[0] != nil {
		o = opts[0]
	}
	return deliver(c, "send.text", "sendMessage", func() error {
		if o == nil {
			return c.Send(text)
		}
		return c.Send(text, o)
	})
}

// SendHTML sends text with HTML parse mode and an optional keyboard.
func SendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	o := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if len(markup) > 0 {
		o.ReplyMarkup = markup[0]
	}
	return SendText(c, text, o)
}

// ClearKeyboard strips the inline keyboard from the message whose button
// was pressed so the choice cannot be made twice. Failures are only logged:
// the message may be too old to edit or already bare.
func ClearKeyboard(c tele.Context) {
	cb := c.Callback()
	if cb == nil || cb.Message == nil || c.Bot() == nil {
		return
	}
	msg := cb.Message
	err := deliver(c, "send.clear_kb", "editMessageReplyMarkup", func() error {
		_, err := c.Bot().EditReplyMarkup(msg, nil)
		if err != nil && strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	})
	if err != nil {
		logger.Debug(BuildContext(c), logger.ComponentSender, "send.clear_kb",
			slog.String("status", "skip"),
			slog.Any("cause", err),
		)
	}
}
