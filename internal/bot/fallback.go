package bot

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/penny/core/logger"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"
	"github.com/m3rciful/penny/internal/assistant"

	tele "gopkg.in/telebot.v4"
)

// maxMessage is kept below Telegram's 4096 character limit.
const maxMessage = 4000

// UnknownText answers free text outside a conversation, through the
// assistant when one is configured.
func (b *Bot) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		text := strings.TrimSpace(c.Text())
		if text == "" {
			return nil
		}
		if b.assistant == nil || !b.assistant.Enabled() {
			return tghelpers.SendText(c, "I didn't get that. Send /help to see what I can do.")
		}
		chat, ok := chatOf(c)
		if !ok {
			return nil
		}
		ctx := tghelpers.BuildContext(c)
		_ = c.Notify(tele.Typing)
		answer, err := b.assistant.Chat(ctx, chat.ID, chat.UserID, text)
		if err != nil {
			if !errors.Is(err, assistant.ErrDisabled) {
				logger.Warn(ctx, logger.ComponentAssistant, "assistant.chat",
					slog.String("status", "fail"),
					slog.Any("err", err),
				)
			}
			return tghelpers.SendText(c, "Sorry, I can't answer right now. Please try again later.")
		}
		return sendLong(c, answer)
	}
}

// UnknownMedia answers photos sent outside a conversation.
func (b *Bot) UnknownMedia() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, "Nice picture! Images are used as token logos in /deploytoken.")
	}
}

// UnknownDocument answers files sent outside a conversation.
func (b *Bot) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, "I can't read files. Send /help to see what I can do.")
	}
}

// UnknownCallback answers buttons nobody handles, usually from old menus.
func (b *Bot) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, "This button is no longer active. Send /start to open the menu.")
	}
}

// RateLimited tells a user who sends updates too quickly to slow down.
// Button presses get a toast instead of a message.
func (b *Bot) RateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Slow down a little."})
	}
	return tghelpers.SendText(c, "Easy there, one message at a time.")
}

func sendLong(c tele.Context, text string) error {
	for _, part := range splitMessage(text, maxMessage) {
		if err := tghelpers.SendText(c, part); err != nil {
			return err
		}
	}
	return nil
}

// sendLongHTML joins blocks into as few messages as fit. Blocks are never
// split so markup stays balanced.
func sendLongHTML(c tele.Context, blocks []string) error {
	var cur strings.Builder
	flush := func() error {
		if cur.Len() == 0 {
			return nil
		}
		err := tghelpers.SendHTML(c, cur.String())
		cur.Reset()
		return err
	}
	for _, blk := range blocks {
		if cur.Len() > 0 && cur.Len()+len(blk)+2 > maxMessage {
			if err := flush(); err != nil {
				return err
			}
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(blk)
	}
	return flush()
}

// splitMessage cuts text into parts of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var parts []string
	for {
		r := []rune(text)
		if len(r) <= limit {
			return append(parts, text)
		}
		head := string(r[:limit])
		if i := strings.LastIndexByte(head, '\n'); i > 0 {
			head = head[:i]
		}
		parts = append(parts, strings.TrimSpace(head))
		text = strings.TrimSpace(text[len(head):])
		if text == "" {
			return parts
		}
	}
}
