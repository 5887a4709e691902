// Package router turns the registry into telebot routes. Every route
// recovers panics, tags the update for logging and ends with one handler
// summary line.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/penny/core/logger"
	tg "github.com/m3rciful/penny/core/telegram"
	"github.com/m3rciful/penny/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures the admin guard on AdminOnly commands.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// guard is the wrapping every route shares.
func guard(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}

// CommandRoutes mounts each command under its name and every alias.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	admin := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	var routes []tg.Route
	for name, cmd := range reg.Commands() {
		h := commandHandler("command."+normalizeHandlerName(name), cmd.Handler)
		if cmd.AdminOnly {
			h = admin(h)
		}
		for _, endpoint := range cmd.Endpoints(name) {
			routes = append(routes, tg.Route{Endpoint: endpoint, Handler: h})
		}
	}

	logger.Info(context.Background(), logger.ComponentTGWire, "wire.complete",
		slog.Int("commands", len(reg.Commands())),
		slog.Int("count", len(routes)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}

func commandHandler(name string, run tele.HandlerFunc) tele.HandlerFunc {
	return guard(func(c tele.Context) error {
		return handleWithSummary(c, name, time.Now(), "", "", func() error { return run(c) })
	})
}
