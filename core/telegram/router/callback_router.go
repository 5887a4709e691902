package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/penny/core/telegram"
	"github.com/m3rciful/penny/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions sets the answer to buttons with an unknown key. NotFound
// takes precedence over the registry's fallback.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

// CallbackRoute dispatches every button press by its unique key.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	return tg.Route{Endpoint: tele.OnCallback, Handler: guard(func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		start := time.Now()
		key, _ := callbacks.ParseCallbackData(cb)
		attrs := []slog.Attr{slog.String("cb_key", key)}

		// stop the button spinner; handlers may still answer with a toast
		_ = c.Respond()

		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			attrs = append(attrs, slog.String("cause", "not_found"))
			h = opts.NotFound
			if h == nil {
				h = reg.CallbackNotFound()
			}
		}
		return handleWithSummary(c, "callback."+normalizeHandlerName(key), start, "", "", func() error {
			if h == nil {
				return nil
			}
			return h(c)
		}, attrs...)
	})}
}
