package router

import (
	"time"

	tg "github.com/m3rciful/penny/core/telegram"
	"github.com/m3rciful/penny/core/telegram/ui"

	tele "gopkg.in/telebot.v4"
)

// Conversation feeds an update to the chat's active flow. handled is false
// when the chat has no flow so the update falls through to other handlers.
type Conversation interface {
	Handle(c tele.Context) (handled bool, err error)
}

// TextOptions controls fallback behaviour for text, photo and document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownMedia    tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// FallbackOptions takes the text, photo and document fallbacks from p.
func FallbackOptions(p ui.FallbackProvider) TextOptions {
	if p == nil {
		return TextOptions{}
	}
	return TextOptions{
		UnknownText:     p.UnknownText(),
		UnknownMedia:    p.UnknownMedia(),
		UnknownDocument: p.UnknownDocument(),
	}
}

// TextRoutes builds handlers for free text, photos and documents. An active
// conversation always sees the update first.
func TextRoutes(conv Conversation, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if done, err := converse(c, conv, "flow", start); done {
			return err
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil && !cmd.AdminOnly {
				name := normalizeHandlerName(key)
				return handleWithSummary(c, name, start, "", "", func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, "", "", func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	photoHandler := func(c tele.Context) error {
		start := time.Now()
		if done, err := converse(c, conv, "flow_photo", start); done {
			return err
		}
		if opts.UnknownMedia != nil {
			return handleWithSummary(c, "unexpected_photo", start, "", "", func() error {
				return opts.UnknownMedia(c)
			})
		}
		logHandlerSummary(c, "unexpected_photo", start, "skip", "ok", nil)
		return nil
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if done, err := converse(c, conv, "flow_document", start); done {
			return err
		}
		if opts.UnknownDocument != nil {
			return handleWithSummary(c, "unexpected_document", start, "", "", func() error {
				return opts.UnknownDocument(c)
			})
		}
		logHandlerSummary(c, "unexpected_document", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: guard(handler)},
		{Endpoint: tele.OnPhoto, Handler: guard(photoHandler)},
		{Endpoint: tele.OnDocument, Handler: guard(docHandler)},
	}
}

// converse offers the update to conv and reports whether it was consumed.
// Only consumed updates get a handler summary.
func converse(c tele.Context, conv Conversation, name string, start time.Time) (bool, error) {
	if conv == nil {
		return false, nil
	}
	handled, err := conv.Handle(c)
	if !handled && err == nil {
		return false, nil
	}
	logHandlerSummary(c, name, start, "", "", err)
	return true, err
}
