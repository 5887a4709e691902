package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/state"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Token: "test", Offline: true})
	require.NoError(t, err)
	return b
}

func textFrom(b *tele.Bot, userID int64) tele.Context {
	return b.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		Text:   "hi",
		Chat:   &tele.Chat{ID: 100},
		Sender: &tele.User{ID: userID},
	}})
}

func TestUpdateKind(t *testing.T) {
	cases := map[string]tele.Update{
		"callback":     {Callback: &tele.Callback{}},
		"photo":        {Message: &tele.Message{Photo: &tele.Photo{}}},
		"document":     {Message: &tele.Message{Document: &tele.Document{}}},
		"message":      {Message: &tele.Message{Text: "x"}},
		"inline_query": {Query: &tele.Query{}},
		"other":        {},
	}
	for want, upd := range cases {
		assert.Equal(t, want, UpdateKind(upd), want)
	}
}

func TestRateLimit(t *testing.T) {
	b := offlineBot(t)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return clock },
	})
	passed := 0
	h := mw(func(tele.Context) error { passed++; return nil })

	require.NoError(t, h(textFrom(b, 1)))
	require.NoError(t, h(textFrom(b, 1)))
	require.NoError(t, h(textFrom(b, 2)))
	assert.Equal(t, 2, passed)
	assert.Equal(t, 1, limited)

	clock = clock.Add(2 * time.Second)
	require.NoError(t, h(textFrom(b, 1)))
	assert.Equal(t, 3, passed)
}

func TestRateLimitExcludesKinds(t *testing.T) {
	b := offlineBot(t)
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})
	passed := 0
	h := mw(func(tele.Context) error { passed++; return nil })
	for i := 0; i < 3; i++ {
		require.NoError(t, h(textFrom(b, 1)))
	}
	assert.Equal(t, 3, passed)
}

func TestAdminOnly(t *testing.T) {
	b := offlineBot(t)
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID:  1,
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	passed := 0
	h := mw(func(tele.Context) error { passed++; return nil })

	require.NoError(t, h(textFrom(b, 1)))
	require.NoError(t, h(textFrom(b, 2)))
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, rejected)

	open := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error { passed++; return nil })
	require.NoError(t, open(textFrom(b, 2)))
	assert.Equal(t, 2, passed)
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("kaboom") })
	err := h(textFrom(b, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "PANIC", pe.Code())

	want := errors.New("plain")
	assert.Equal(t, want, RecoverMiddleware(func(tele.Context) error { return want })(textFrom(b, 1)))
}

type activeFlows map[int64]string

func (a activeFlows) Active(_ context.Context, chat state.Chat) (state.Session, bool) {
	id, ok := a[chat.ID]
	return state.Session{FlowID: id}, ok
}

func TestFlowTag(t *testing.T) {
	b := offlineBot(t)
	var got string
	h := FlowTag(activeFlows{100: "expense"})(func(c tele.Context) error {
		got = logger.FlowFrom(tghelpers.BuildContext(c))
		return nil
	})
	require.NoError(t, h(textFrom(b, 1)))
	assert.Equal(t, "expense", got)
}

func TestLoggerKeepsTagsAcrossPasses(t *testing.T) {
	b := offlineBot(t)
	c := textFrom(b, 1)
	var got string
	inner := LoggerMiddleware(func(c tele.Context) error {
		got = logger.FlowFrom(tghelpers.BuildContext(c))
		return nil
	})
	tagged := FlowTag(activeFlows{100: "budget"})(inner)
	require.NoError(t, LoggerMiddleware(tagged)(c))
	assert.Equal(t, "budget", got)
}

func TestReceiptAttrs(t *testing.T) {
	b := offlineBot(t)
	attrs := receiptAttrs(textFrom(b, 1), "rid-1")
	keys := map[string]bool{}
	for _, a := range attrs {
		keys[a.Key] = true
	}
	for _, k := range []string{"rid", "update_id", "kind", "chat_id", "user_id", "payload"} {
		assert.True(t, keys[k], k)
	}
}

func TestMessageMetricsTalliesSends(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Token: "test", Offline: true})
	require.NoError(t, err)
	c := b.NewContext(tele.Update{Message: &tele.Message{Text: "x"}})

	var inner tele.Context
	h := MessageMetricsMiddleware(MessageMetricsMiddleware(func(c tele.Context) error {
		inner = c
		return nil
	}))
	require.NoError(t, h(c))

	tc, ok := inner.(countingContext)
	require.True(t, ok)
	_ = tc.count(nil, []interface{}{&tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{}}})
	_ = tc.count(nil, nil)
	_ = tc.count(assert.AnError, nil)

	msgs, kb := GetCounters(c)
	assert.Equal(t, 2, msgs)
	assert.True(t, kb)
}
