package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/penny/core/config"
	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/netutil"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"
	tgsender "github.com/m3rciful/penny/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// stopTimeout bounds OnStop once the run context is gone.
const stopTimeout = 10 * time.Second

// Middleware is a named global middleware, applied with bot.Use in order.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route binds a handler to an endpoint as accepted by tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions wires a bot for RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	// HTTPClient carries Bot API calls; netutil.NewClient when nil.
	HTTPClient *http.Client

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// Mount puts the webhook receiver on the application's HTTP router.
	// Webhook mode fails without it.
	Mount func(path string, h http.Handler)

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks get to work with.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram starts the bot and blocks until ctx is cancelled or the
// webhook cannot be registered. OnStop runs after updates stop flowing and
// before the send queue drains, so it may still queue messages.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	cfg := opts.Config

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			PublicURL:   cfg.Webhook.URL + cfg.Webhook.Path,
			SecretToken: cfg.Webhook.SecretToken,
		},
	})
	if _, ok := poller.(*WebhookPoller); ok && opts.Mount == nil {
		return errors.New("telegram: webhook mode requires a Mount function")
	}

	started := time.Now()
	bot, err := newBot(cfg.Telegram.Token, NewChatOrderPoller(poller), opts.HTTPClient)
	if err != nil {
		return err
	}

	rt := Runtime{Bot: bot, Dispatcher: opts.Dispatcher, Registry: opts.Registry}
	if rt.Dispatcher == nil {
		rt.Dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(rt.Dispatcher)
	}
	release := func() {
		rt.Dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}

	pollErr := attachPoller(ctx, bot, poller, opts, time.Since(started))

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
	InitBotCommands(bot, opts.Registry, cfg.Telegram.AdminID)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	runErr := serve(ctx, bot, pollErr)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(stopCtx, rt)
	}
	release()

	if stopErr != nil {
		return stopErr
	}
	return runErr
}

func newBot(token string, poller tele.Poller, client *http.Client) (*tele.Bot, error) {
	if client == nil {
		client = netutil.NewClient(netutil.ClientOptions{})
	}
	// Handlers run on the per-chat workers of ChatOrderPoller, not on
	// telebot's own goroutines.
	bot, err := tele.NewBot(tele.Settings{
		Token:       token,
		Poller:      poller,
		Client:      client,
		Synchronous: true,
		OnError: func(err error, c tele.Context) {
			ctx := context.Background()
			if c != nil {
				ctx = tghelpers.BuildContext(c)
			}
			logger.Error(ctx, logger.ComponentTG, "bot.error", slog.Any("err", err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// attachPoller mounts the webhook receiver, or clears a stale webhook so
// long polling receives updates. The returned channel reports a failed
// webhook registration and is nil when polling.
func attachPoller(ctx context.Context, bot *tele.Bot, poller tele.Poller, opts RunOptions, took time.Duration) <-chan error {
	cfg := opts.Config
	if p, ok := poller.(*WebhookPoller); ok {
		opts.Mount(cfg.Webhook.Path, p)
		logger.Info(ctx, logger.ComponentTG, "mode",
			slog.String("mode", RunModeWebhook),
			slog.String("route", cfg.Webhook.Path),
			slog.String("public_url", p.PublicURL()),
			slog.Duration("duration", took),
		)
		return p.Err()
	}

	timeout := cfg.Telegram.LongPollTimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	logger.Info(ctx, logger.ComponentTG, "mode",
		slog.String("mode", RunModeLongpoll),
		slog.Int("timeout_seconds", timeout),
		slog.Duration("duration", took),
	)
	if opts.DisableWebhookCleanup || !strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
		return nil
	}
	err := bot.RemoveWebhook(false)
	logger.Info(ctx, logger.ComponentTG, "webhook.remove", slog.String("status", logger.Status(err)), slog.Any("err", err))
	return nil
}

// serve runs the update loop until ctx ends, the poller fails or the bot
// stops by itself. A cancelled context is a clean exit.
func serve(ctx context.Context, bot *tele.Bot, pollErr <-chan error) error {
	done := make(chan struct{})
	go func() {
		bot.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case err := <-pollErr:
		bot.Stop()
		<-done
		return fmt.Errorf("telegram: webhook registration failed: %w", err)
	case <-done:
		return nil
	}
}
