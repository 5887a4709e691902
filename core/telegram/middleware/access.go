package middleware

import (
	"log/slog"

	"github.com/m3rciful/penny/core/logger"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// AdminOptions configures AdminOnlyMiddleware. A zero AdminID leaves the
// guarded commands open, which is how a bot without an operator runs.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// IsAdmin reports whether the sender of c may use admin commands.
func (o AdminOptions) IsAdmin(c tele.Context) bool {
	if o.AdminID == 0 {
		return true
	}
	u := c.Sender()
	return u != nil && u.ID == o.AdminID
}

// AdminOnlyMiddleware lets only the configured admin through. Everyone else
// gets OnReject, or silence.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if opts.IsAdmin(c) {
				return next(c)
			}
			logger.Info(tghelpers.BuildContext(c), logger.ComponentTG, "access.denied",
				slog.String("status", "skip"),
				slog.String("handler", logger.HandlerFrom(tghelpers.BuildContext(c))),
			)
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}
