package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/penny/core/logger"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// PanicError is what a recovered handler panic turns into.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("telegram: handler panic: %v", e.Value) }

// Code tags the failure in handler summaries.
func (e *PanicError) Code() string { return "PANIC" }

// RecoverMiddleware keeps a panicking handler from taking the bot down. The
// panic is logged with its stack and returned as a *PanicError so the
// handler summary marks the update failed.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.Error(tghelpers.BuildContext(c), logger.ComponentTG, "tg.panic",
				slog.String("status", "fail"),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = &PanicError{Value: r}
		}()
		return next(c)
	}
}
