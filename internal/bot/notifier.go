package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Sender is the part of *tele.Bot the notifier uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier pushes HTML messages to chats outside an update. Texts go
// through the shared send queue when one is given; photos are sent inline
// so a failure reaches the caller, which falls back to text.
type Notifier struct {
	api  Sender
	disp *sender.Dispatcher
}

// NewNotifier builds a Notifier. disp may be nil for synchronous sends.
func NewNotifier(api Sender, disp *sender.Dispatcher) *Notifier {
	return &Notifier{api: api, disp: disp}
}

// SendText sends an HTML message to chatID.
func (n *Notifier) SendText(ctx context.Context, chatID int64, html string) error {
	return n.enqueue(ctx, "notify.text", "sendMessage", func() error {
		_, err := n.api.Send(tele.ChatID(chatID), html, &tele.SendOptions{ParseMode: tele.ModeHTML})
		return err
	})
}

// SendPhoto sends a previously uploaded photo with an HTML caption.
func (n *Notifier) SendPhoto(_ context.Context, chatID int64, fileID, captionHTML string) error {
	photo := &tele.Photo{File: tele.File{FileID: fileID}, Caption: captionHTML}
	_, err := n.api.Send(tele.ChatID(chatID), photo, &tele.SendOptions{ParseMode: tele.ModeHTML})
	return err
}

func (n *Notifier) enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if n.disp == nil {
		return run()
	}
	err := n.disp.Enqueue(ctx, action, endpoint, run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.ComponentSender, "queue.fallback",
			slog.String("action", action),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}
