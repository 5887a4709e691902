package middleware

import (
	"context"

	"github.com/m3rciful/penny/core/state"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// ActiveFlows reports the conversation a chat is in.
type ActiveFlows interface {
	Active(ctx context.Context, chat state.Chat) (state.Session, bool)
}

// FlowTag adds the chat's active flow to the stored log context so every
// line written while handling the update carries it.
func FlowTag(flows ActiveFlows) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			chat := c.Chat()
			if flows == nil || chat == nil {
				return next(c)
			}
			if sess, ok := flows.Active(tghelpers.BuildContext(c), state.Chat{ID: chat.ID}); ok {
				tghelpers.WithFlow(c, sess.FlowID)
			}
			return next(c)
		}
	}
}
