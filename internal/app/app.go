package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/penny/core/bootstrap"
	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/netutil"
	"github.com/m3rciful/penny/core/state"
	coretelegram "github.com/m3rciful/penny/core/telegram"
	"github.com/m3rciful/penny/internal/assistant"
	"github.com/m3rciful/penny/internal/bot"
	"github.com/m3rciful/penny/internal/correlator"
	"github.com/m3rciful/penny/internal/flows"
	"github.com/m3rciful/penny/internal/ledger"
	"github.com/m3rciful/penny/internal/oneshot"
	"github.com/m3rciful/penny/internal/server"
	"github.com/m3rciful/penny/internal/webhook"
)

// sessionFamily scopes Penny's conversations in the session store.
const sessionFamily = "penny"

// Services are the long-lived collaborators built once at startup. Ledger
// is nil without a database and Gateway is nil without credentials.
type Services struct {
	Ledger    *ledger.Store
	Gateway   *oneshot.Client
	Assistant *assistant.Assistant
}

// App is a bootstrapped Penny instance.
type App struct {
	cfg    *Config
	db     *sqlx.DB
	svc    *Services
	server *server.Server

	// openStore is replaced in tests.
	openStore func(SessionsConfig) (state.Store, error)
}

// Bootstrap initializes logging, the database with its seeders and the
// outbound clients.
func Bootstrap(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
		Modules: bootstrap.Modules{
			Seeders: []bootstrap.Seeder{ledger.CategorySeeder},
			Services: bootstrap.Provider[*Services](func(ctx context.Context, storage bootstrap.Storage) (*Services, error) {
				return buildServices(ctx, cfg, storage), nil
			}),
		},
	})
	if err != nil {
		return nil, err
	}
	svc, ok := res.Services.(*Services)
	if !ok {
		return nil, fmt.Errorf("app: unexpected services %T", res.Services)
	}
	return &App{cfg: cfg, db: res.DB, svc: svc, openStore: openSessions}, nil
}

func buildServices(ctx context.Context, cfg *Config, storage bootstrap.Storage) *Services {
	svc := &Services{}
	if db, ok := storage.(*sqlx.DB); ok && db != nil {
		svc.Ledger = ledger.NewStore(db)
	} else {
		logger.Warn(ctx, logger.ComponentLedger, "ledger.disabled", slog.String("reason", "no_database"))
	}
	if cfg.OneShot.Enabled() {
		svc.Gateway = oneshot.New(cfg.OneShot, netutil.NewClient(netutil.ClientOptions{Timeout: cfg.OneShot.Timeout}))
	} else {
		logger.Warn(ctx, logger.ComponentGateway, "gateway.disabled", slog.String("reason", "no_credentials"))
	}
	var expenses assistant.Expenses
	if svc.Ledger != nil {
		expenses = svc.Ledger
	}
	svc.Assistant = assistant.New(cfg.Assistant, netutil.NewClient(netutil.ClientOptions{Timeout: cfg.Assistant.Timeout}), expenses)
	return svc
}

func openSessions(cfg SessionsConfig) (state.Store, error) {
	if cfg.Backend == SessionsPebble {
		return state.OpenPebbleStore(cfg.Path)
	}
	return state.NewMemoryStore(), nil
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// TelegramRunOptions wires the conversation engine, the bot handlers, the
// HTTP server and the callback correlator into the Telegram runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	store, err := a.openStore(a.cfg.Sessions)
	if err != nil {
		return coretelegram.RunOptions{}, fmt.Errorf("app: open sessions: %w", err)
	}
	engine := state.NewEngine(store, state.Options{
		Family: sessionFamily,
		TTL:    a.cfg.Sessions.TTL,
	})

	// Optional collaborators are assigned only when present so the
	// interfaces never hold a typed nil.
	flowDeps := flows.Deps{Chain: a.cfg.OneShot}
	botDeps := bot.Deps{Engine: engine, Chain: a.cfg.OneShot, AdminID: a.cfg.Telegram.AdminID, Explorer: a.cfg.Explorer.URL}
	if a.svc.Gateway != nil {
		flowDeps.Gateway = a.svc.Gateway
		botDeps.Gateway = a.svc.Gateway
	}
	if a.svc.Ledger != nil {
		flowDeps.Ledger = a.svc.Ledger
		botDeps.Ledger = a.svc.Ledger
	}
	if a.svc.Assistant.Enabled() {
		botDeps.Assistant = a.svc.Assistant
	}
	if err := flows.Register(engine, flowDeps); err != nil {
		_ = store.Close()
		return coretelegram.RunOptions{}, fmt.Errorf("app: register flows: %w", err)
	}

	b := bot.New(botDeps)
	reg := coretelegram.NewRegistry()
	srv := server.New(a.cfg.Server.Addr())
	a.server = srv

	mws := coretelegram.DefaultMiddlewares(&a.cfg.Config, b.RateLimited)
	mws = append(mws, b.Middlewares()...)

	return coretelegram.RunOptions{
		Config:      &a.cfg.Config,
		Registry:    reg,
		Middlewares: mws,
		Routes:      b.Routes(reg),
		Mount:       srv.Mount,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			if a.svc.Gateway != nil {
				corr := correlator.New(bot.NewNotifier(rt.Bot, rt.Dispatcher), correlator.Options{
					ExplorerURL:    a.cfg.Explorer.URL,
					AnnounceChatID: a.cfg.Announce.ChatID,
				})
				verifier := webhook.NewVerifier(a.svc.Gateway, a.cfg.OneShot.Verify())
				srv.Mount(CallbackPath, webhook.Handler(verifier, corr))
				go corr.Run(ctx)
			}
			if err := srv.Start(ctx); err != nil {
				return err
			}
			engine.RunJanitor(ctx, a.cfg.Sessions.SweepInterval)
			return nil
		},
		OnStop: func(ctx context.Context, _ coretelegram.Runtime) error {
			return errors.Join(srv.Shutdown(ctx), store.Close(), a.Close())
		},
	}, nil
}
