// Package bot wires Penny's commands, main menu and conversations onto the
// Telegram runtime.
package bot

import (
	"context"
	"strings"
	"time"

	"github.com/m3rciful/penny/core/state"
	tg "github.com/m3rciful/penny/core/telegram"
	"github.com/m3rciful/penny/core/telegram/middleware"
	"github.com/m3rciful/penny/core/telegram/router"
	"github.com/m3rciful/penny/core/telegram/ui"
	"github.com/m3rciful/penny/internal/assistant"
	"github.com/m3rciful/penny/internal/ledger"
	"github.com/m3rciful/penny/internal/oneshot"
)

// Callback uniques owned by the bot.
const (
	// CallbackFlow buttons answer the prompt of the active conversation.
	CallbackFlow = "flow"
	// CallbackMenu buttons start the conversation named in their payload.
	CallbackMenu = "menu"
)

// Conversations is the engine surface the bot drives.
type Conversations interface {
	Flows() []string
	Start(ctx context.Context, chat state.Chat, flowID string) (state.Reply, error)
	Active(ctx context.Context, chat state.Chat) (state.Session, bool)
	Cancel(ctx context.Context, chat state.Chat) (state.Reply, bool, error)
	Handle(ctx context.Context, chat state.Chat, in state.Input) (state.Reply, bool, error)
}

// Ledger is the read side of the expense store plus user registration.
type Ledger interface {
	EnsureUser(ctx context.Context, u ledger.User) error
	Summarize(ctx context.Context, userID int64, now time.Time) (ledger.Summary, error)
	SpendingByCategory(ctx context.Context, userID int64, since time.Time) ([]ledger.CategoryTotal, error)
	RecentExpenses(ctx context.Context, userID int64, limit int) ([]ledger.Expense, error)
	Budgets(ctx context.Context, userID int64, asOf time.Time) ([]ledger.BudgetProgress, error)
	Goals(ctx context.Context, userID int64) ([]ledger.Goal, error)
}

// Gateway is the read side of the transaction API.
type Gateway interface {
	ListWallets(ctx context.Context, f oneshot.WalletFilter) ([]oneshot.Wallet, error)
	ListEndpoints(ctx context.Context, f oneshot.EndpointFilter) ([]oneshot.Endpoint, error)
}

// Assistant answers free text and narrates reports.
type Assistant interface {
	Enabled() bool
	Chat(ctx context.Context, chatID, userID int64, text string) (string, error)
	Report(ctx context.Context, d assistant.ReportData) (string, error)
	Forget(chatID int64)
}

// Deps are the bot's collaborators. Ledger, Gateway and Assistant are
// optional; commands needing a missing one answer that it is unavailable.
type Deps struct {
	Engine    Conversations
	Ledger    Ledger
	Gateway   Gateway
	Chain     oneshot.Config
	Assistant Assistant
	AdminID   int64
	// Explorer is the block explorer base URL for address links.
	Explorer string
	Now      func() time.Time
}

// Bot holds the handlers. It is safe for concurrent use.
type Bot struct {
	engine    Conversations
	ledger    Ledger
	gateway   Gateway
	chain     oneshot.Config
	assistant Assistant
	adminID   int64
	explorer  string
	now       func() time.Time

	reg   *tg.Registry
	users *userCache
}

var _ ui.FallbackProvider = (*Bot)(nil)

// New builds a Bot. Deps.Engine is required.
func New(d Deps) *Bot {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Bot{
		engine:    d.Engine,
		ledger:    d.Ledger,
		gateway:   d.Gateway,
		chain:     d.Chain,
		assistant: d.Assistant,
		adminID:   d.AdminID,
		explorer:  strings.TrimRight(d.Explorer, "/"),
		now:       d.Now,
		users:     newUserCache(),
	}
}

// Middlewares are the global middlewares the bot adds after the shared chain.
func (b *Bot) Middlewares() []tg.Middleware {
	return []tg.Middleware{
		{Name: "flow_tag", Use: middleware.FlowTag(b.engine)},
		{Name: "ensure_user", Use: b.EnsureUser},
	}
}

// Routes registers the bot's commands and callbacks in reg and returns the
// handlers to mount.
func (b *Bot) Routes(reg *tg.Registry) []tg.Route {
	b.Register(reg)
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID:       b.adminID,
		OnAdminReject: b.adminOnly,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: b.UnknownCallback()}))
	routes = append(routes, router.TextRoutes(b, reg, router.FallbackOptions(b))...)
	return routes
}
