package helpers

import (
	"context"

	"github.com/m3rciful/penny/core/logger"

	tele "gopkg.in/telebot.v4"
)

// contextKey is where the update's log context lives in the tele.Context
// store.
const contextKey = "logger_ctx"

// StoreContext replaces the update's log context.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(contextKey, ctx)
	}
}

// ContextFrom returns the log context stored for this update, if any.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(contextKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the update's log context, creating it on first use.
// It carries the request id, the update, chat and user ids and a logger
// scoped to the Telegram component, so service calls made while handling
// the update log under the same rid.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}
	updateID := c.Update().ID
	chatID, userID := ids(c)

	rid, _ := c.Get("rid").(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}
	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component(logger.ComponentTG))
	StoreContext(c, ctx)
	return ctx
}

// WithHandler tags the stored context with the handler name.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}

// WithFlow tags the stored context with the chat's active conversation.
func WithFlow(c tele.Context, flowID string) context.Context {
	ctx := BuildContext(c)
	if flowID == "" {
		return ctx
	}
	ctx = logger.WithFlow(ctx, flowID)
	StoreContext(c, ctx)
	return ctx
}

func ids(c tele.Context) (chatID, userID int64) {
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	return chatID, userID
}
