package bot

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/penny/core/logger"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"
	"github.com/m3rciful/penny/internal/ledger"

	tele "gopkg.in/telebot.v4"
)

// userCache remembers which users were stored during this process so the
// ledger is written once per user and name change.
type userCache struct {
	mu   sync.Mutex
	seen map[int64]ledger.User
}

func newUserCache() *userCache {
	return &userCache{seen: make(map[int64]ledger.User)}
}

func (u *userCache) fresh(user ledger.User) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	prev, ok := u.seen[user.ID]
	return ok && prev == user
}

func (u *userCache) mark(user ledger.User) {
	u.mu.Lock()
	u.seen[user.ID] = user
	u.mu.Unlock()
}

// EnsureUser records the sender in the ledger before the update is handled.
// Storage failures are logged and never block the update.
func (b *Bot) EnsureUser(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		s := c.Sender()
		if b.ledger == nil || s == nil || s.IsBot {
			return next(c)
		}
		user := ledger.User{ID: s.ID, Username: s.Username, FirstName: s.FirstName}
		if !b.users.fresh(user) {
			ctx := tghelpers.BuildContext(c)
			if err := b.ledger.EnsureUser(ctx, user); err != nil {
				logger.Warn(ctx, logger.ComponentLedger, "ledger.ensure_user",
					slog.String("status", "fail"),
					slog.Any("err", err),
				)
			} else {
				b.users.mark(user)
			}
		}
		return next(c)
	}
}
