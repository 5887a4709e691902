package bot

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/state"
	"github.com/m3rciful/penny/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"
	"github.com/m3rciful/penny/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

const (
	replyBusy     = "⏳ Still working on your previous message, please wait a moment."
	replyFailed   = "❌ Something went wrong, please try again later."
	replyExpired  = "This conversation has ended. Send /start to begin again."
	choicesPerRow = 2
)

// Handle feeds the update to the chat's active conversation. It reports
// false when the chat has none so the update can be routed elsewhere.
func (b *Bot) Handle(c tele.Context) (bool, error) {
	chat, ok := chatOf(c)
	if !ok {
		return false, nil
	}
	in, ok := inputOf(c)
	if !ok {
		return false, nil
	}
	ctx := tghelpers.BuildContext(c)
	reply, handled, err := b.engine.Handle(ctx, chat, in)
	if errors.Is(err, state.ErrBusy) {
		return true, tghelpers.SendText(c, replyBusy)
	}
	if err != nil {
		logger.Error(ctx, logger.ComponentFlow, "flow.input",
			slog.String("status", "fail"),
			slog.String("input", in.Kind.String()),
			slog.Any("err", err),
		)
		return true, tghelpers.SendText(c, replyFailed)
	}
	if !handled {
		return false, nil
	}
	return true, b.sendReply(c, reply)
}

// start begins flowID for the chat behind c and sends its first prompt.
func (b *Bot) start(c tele.Context, flowID string) error {
	chat, ok := chatOf(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	reply, err := b.engine.Start(ctx, chat, flowID)
	switch {
	case errors.Is(err, state.ErrBusy):
		return tghelpers.SendText(c, replyBusy)
	case errors.Is(err, state.ErrUnknownFlow):
		logger.Warn(ctx, logger.ComponentFlow, "flow.start",
			slog.String("status", "unknown"),
			slog.String("flow_id", flowID),
		)
		return tghelpers.SendText(c, "That action is not available right now.")
	case err != nil:
		logger.Error(ctx, logger.ComponentFlow, "flow.start",
			slog.String("status", "fail"),
			slog.String("flow_id", flowID),
			slog.Any("err", err),
		)
		return tghelpers.SendText(c, replyFailed)
	}
	return b.sendReply(c, reply)
}

// flowCallback answers a button of the active conversation.
func (b *Bot) flowCallback(c tele.Context) error {
	handled, err := b.Handle(c)
	if handled {
		tghelpers.ClearKeyboard(c)
	}
	if err != nil || handled {
		return err
	}
	return tghelpers.SendText(c, replyExpired)
}

// menuCallback starts the conversation named in the button payload.
func (b *Bot) menuCallback(c tele.Context) error {
	flowID := strings.TrimSpace(callbacks.CallbackPayload(c))
	if flowID == "" {
		return nil
	}
	return b.start(c, flowID)
}

func (b *Bot) sendReply(c tele.Context, r state.Reply) error {
	if strings.TrimSpace(r.Text) == "" {
		return nil
	}
	opts := &tele.SendOptions{}
	if rm := replyMarkup(r); rm != nil {
		opts.ReplyMarkup = rm
	}
	return tghelpers.SendText(c, r.Text, opts)
}

// replyMarkup lays out the reply's choices in a grid with skip and cancel
// on a row of their own.
func replyMarkup(r state.Reply) *tele.ReplyMarkup {
	var choices, controls []keyboard.InlineBtn
	for _, btn := range r.Buttons {
		ib := keyboard.InlineBtn{Text: btn.Label, Unique: CallbackFlow, Data: btn.Action}
		switch btn.Action {
		case state.ActionSkip, state.ActionCancel:
			controls = append(controls, ib)
		default:
			choices = append(choices, ib)
		}
	}
	return keyboard.Grid(choices, choicesPerRow, controls...)
}

func chatOf(c tele.Context) (state.Chat, bool) {
	chat := c.Chat()
	if chat == nil {
		return state.Chat{}, false
	}
	sc := state.Chat{ID: chat.ID}
	if u := c.Sender(); u != nil {
		sc.UserID = u.ID
	}
	return sc, true
}

// inputOf maps an update to engine input: flow buttons become actions,
// photos and image documents become media, anything else is text.
func inputOf(c tele.Context) (state.Input, bool) {
	if cb := c.Callback(); cb != nil {
		key, payload := callbacks.ParseCallbackData(cb)
		if key != CallbackFlow || payload == "" {
			return state.Input{}, false
		}
		return state.Action(payload), true
	}
	m := c.Message()
	if m == nil {
		return state.Input{}, false
	}
	if m.Photo != nil && m.Photo.FileID != "" {
		return state.Media(m.Photo.FileID), true
	}
	if d := m.Document; d != nil && strings.HasPrefix(d.MIME, "image/") && d.FileID != "" {
		return state.Media(d.FileID), true
	}
	if m.Text == "" {
		return state.Input{}, false
	}
	return state.Text(m.Text), true
}
