package bot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/penny/core/state"
	tg "github.com/m3rciful/penny/core/telegram"
	"github.com/m3rciful/penny/core/telegram/callbacks"
	"github.com/m3rciful/penny/internal/assistant"
	"github.com/m3rciful/penny/internal/flows"
	"github.com/m3rciful/penny/internal/ledger"
	"github.com/m3rciful/penny/internal/oneshot"
)

const (
	testChat = int64(42)
	testUser = int64(7)
)

type apiCall struct {
	Method string
	Params map[string]any
}

func (c apiCall) text() string {
	s, _ := c.Params["text"].(string)
	return s
}

type inlineKeyboard struct {
	Rows [][]struct {
		Text string `json:"text"`
		Data string `json:"callback_data"`
		URL  string `json:"url"`
	} `json:"inline_keyboard"`
}

func (c apiCall) keyboard(t *testing.T) inlineKeyboard {
	t.Helper()
	var kb inlineKeyboard
	raw, _ := c.Params["reply_markup"].(string)
	require.NotEmpty(t, raw, "reply_markup missing")
	require.NoError(t, json.Unmarshal([]byte(raw), &kb))
	return kb
}

// fakeTelegram records Bot API calls and answers each with a message.
type fakeTelegram struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	params := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&params)
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: path.Base(r.URL.Path), Params: params})
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`)
}

// sent returns the sendMessage calls in order.
func (f *fakeTelegram) sent() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == "sendMessage" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTelegram) last(t *testing.T) apiCall {
	t.Helper()
	s := f.sent()
	require.NotEmpty(t, s, "no message sent")
	return s[len(s)-1]
}

type fakeLedger struct {
	mu       sync.Mutex
	users    []ledger.User
	expenses []ledger.Expense
	totals   []ledger.CategoryTotal
	err      error
}

func (l *fakeLedger) EnsureUser(_ context.Context, u ledger.User) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = append(l.users, u)
	return l.err
}

func (l *fakeLedger) Summarize(context.Context, int64, time.Time) (ledger.Summary, error) {
	return ledger.Summary{MonthCents: 4250, MonthCount: 3, ActiveBudgets: 1, OpenGoals: 2}, l.err
}

func (l *fakeLedger) SpendingByCategory(context.Context, int64, time.Time) ([]ledger.CategoryTotal, error) {
	return l.totals, l.err
}

func (l *fakeLedger) RecentExpenses(context.Context, int64, int) ([]ledger.Expense, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ledger.Expense(nil), l.expenses...), l.err
}

func (l *fakeLedger) Budgets(context.Context, int64, time.Time) ([]ledger.BudgetProgress, error) {
	return nil, l.err
}

func (l *fakeLedger) Goals(context.Context, int64) ([]ledger.Goal, error) {
	return nil, l.err
}

func (l *fakeLedger) AddExpense(_ context.Context, e ledger.Expense) (ledger.Expense, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = int64(len(l.expenses) + 1)
	l.expenses = append(l.expenses, e)
	return e, nil
}

func (l *fakeLedger) AddBudget(_ context.Context, b ledger.Budget) (ledger.Budget, error) {
	return b, nil
}

func (l *fakeLedger) AddGoal(_ context.Context, g ledger.Goal) (ledger.Goal, error) {
	return g, nil
}

type fakeAssistant struct {
	enabled   bool
	answer    string
	err       error
	asked     []string
	reports   []assistant.ReportData
	forgotten []int64
}

func (a *fakeAssistant) Enabled() bool { return a.enabled }

func (a *fakeAssistant) Chat(_ context.Context, _, _ int64, text string) (string, error) {
	a.asked = append(a.asked, text)
	return a.answer, a.err
}

func (a *fakeAssistant) Report(_ context.Context, d assistant.ReportData) (string, error) {
	a.reports = append(a.reports, d)
	return a.answer, a.err
}

func (a *fakeAssistant) Forget(chatID int64) { a.forgotten = append(a.forgotten, chatID) }

type harness struct {
	tb  *tele.Bot
	api *fakeTelegram
	bot *Bot
	reg *tg.Registry
	lg  *fakeLedger
}

func newHarness(t *testing.T, as Assistant) *harness {
	t.Helper()
	api := &fakeTelegram{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	tb, err := tele.NewBot(tele.Settings{Token: "test", URL: srv.URL, Offline: true})
	require.NoError(t, err)

	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	engine := state.NewEngine(state.NewMemoryStore(), state.Options{
		Family: "penny",
		TTL:    time.Hour,
		Now:    func() time.Time { return now },
	})
	lg := &fakeLedger{}
	require.NoError(t, flows.Register(engine, flows.Deps{Ledger: lg, Now: func() time.Time { return now }}))

	d := Deps{
		Engine:  engine,
		Ledger:  lg,
		Chain:   oneshot.Config{ChainID: oneshot.SepoliaChainID},
		Now:     func() time.Time { return now },
		AdminID: 1,
	}
	if as != nil {
		d.Assistant = as
	}
	b := New(d)
	reg := tg.NewRegistry()
	b.Register(reg)
	return &harness{tb: tb, api: api, bot: b, reg: reg, lg: lg}
}

func (h *harness) message(text string) tele.Context {
	return h.tb.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		ID:     10,
		Text:   text,
		Chat:   &tele.Chat{ID: testChat, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: testUser, FirstName: "Ada", Username: "ada"},
	}})
}

func (h *harness) press(unique, payload string) tele.Context {
	return h.tb.NewContext(tele.Update{ID: 2, Callback: &tele.Callback{
		ID:     "cb",
		Data:   callbacks.Data(unique, payload),
		Sender: &tele.User{ID: testUser},
		Message: &tele.Message{
			ID:   11,
			Chat: &tele.Chat{ID: testChat, Type: tele.ChatPrivate},
		},
	}})
}

func (h *harness) command(t *testing.T, name string) tele.HandlerFunc {
	t.Helper()
	cmd, ok := h.reg.Commands()[name]
	require.True(t, ok, "command %s not registered", name)
	return cmd.Handler
}

func TestRegisterOnlyAddsKnownFlows(t *testing.T) {
	h := newHarness(t, nil)
	cmds := h.reg.Commands()
	for _, name := range []string{"/start", "/hello", "/help", "/cancel", "/report", "/wallet", "/endpoints", "/time", "/expense", "/budget", "/goal"} {
		assert.Contains(t, cmds, name)
	}
	assert.NotContains(t, cmds, "/deploytoken")
	assert.NotContains(t, cmds, "/tokentransfer")
	assert.True(t, cmds["/endpoints"].AdminOnly)
	assert.ElementsMatch(t, []string{CallbackFlow, CallbackMenu}, h.reg.ListCallbacks())
}

func TestRoutesMountAliases(t *testing.T) {
	h := newHarness(t, nil)
	endpoints := map[any]bool{}
	for _, r := range h.bot.Routes(tg.NewRegistry()) {
		endpoints[r.Endpoint] = true
	}
	for _, e := range []string{"/hello", "/whoami", "/wallet", "/escrowinfo", "/checkbalance", "/transactionendpoints", "/checktime", "/expense"} {
		assert.True(t, endpoints[e], e)
	}
	assert.True(t, endpoints[tele.OnText])
	assert.True(t, endpoints[tele.OnCallback])
}

func TestStartShowsMenu(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.command(t, "/start")(h.message("/start")))

	msg := h.api.last(t)
	assert.Equal(t, "HTML", msg.Params["parse_mode"])
	assert.Contains(t, msg.text(), "Penny")

	kb := msg.keyboard(t)
	require.Len(t, kb.Rows, 3)
	assert.Equal(t, "💸 Add Expense", kb.Rows[0][0].Text)
	key, payload := callbacks.ParseCallbackData(&tele.Callback{Data: kb.Rows[0][0].Data})
	assert.Equal(t, CallbackMenu, key)
	assert.Equal(t, flows.Expense, payload)
}

func TestExpenseConversation(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.bot.menuCallback(h.press(CallbackMenu, flows.Expense)))
	assert.Contains(t, h.api.last(t).text(), "How much")

	handled, err := h.bot.Handle(h.message("abc"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.True(t, strings.HasPrefix(h.api.last(t).text(), "⚠️"))

	handled, err = h.bot.Handle(h.message("12.50"))
	require.NoError(t, err)
	assert.True(t, handled)
	kb := h.api.last(t).keyboard(t)
	require.NotEmpty(t, kb.Rows)
	assert.Equal(t, "Food", kb.Rows[0][0].Text)

	require.NoError(t, h.bot.flowCallback(h.press(CallbackFlow, flows.ActionPrefix+"Food")))
	assert.Contains(t, h.api.last(t).text(), "description")

	require.NoError(t, h.bot.flowCallback(h.press(CallbackFlow, state.ActionSkip)))
	assert.Equal(t, "✅ Saved 12.50 in Food.", h.api.last(t).text())

	require.Len(t, h.lg.expenses, 1)
	got := h.lg.expenses[0]
	assert.Equal(t, int64(1250), got.AmountCents)
	assert.Equal(t, "Food", got.Category)
	assert.Equal(t, testUser, got.UserID)
	assert.Empty(t, got.Description)
}

func TestHandleIdleChatFallsThrough(t *testing.T) {
	h := newHarness(t, nil)
	handled, err := h.bot.Handle(h.message("hello there"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, h.api.sent())
}

func TestFlowButtonWithoutSessionExpired(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.bot.flowCallback(h.press(CallbackFlow, "confirm")))
	assert.Equal(t, replyExpired, h.api.last(t).text())
}

func TestCancel(t *testing.T) {
	as := &fakeAssistant{}
	h := newHarness(t, as)
	cancel := h.command(t, "/cancel")

	require.NoError(t, cancel(h.message("/cancel")))
	assert.Equal(t, "Nothing to cancel.", h.api.last(t).text())

	require.NoError(t, h.command(t, "/goal")(h.message("/goal")))
	require.NoError(t, cancel(h.message("/cancel")))
	assert.Equal(t, "Cancelled. Nothing was submitted.", h.api.last(t).text())
	assert.Equal(t, []int64{testChat, testChat}, as.forgotten)

	handled, err := h.bot.Handle(h.message("Holiday"))
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestHelloSummary(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.command(t, "/hello")(h.message("/hello")))
	text := h.api.last(t).text()
	assert.Contains(t, text, "Hi Ada")
	assert.Contains(t, text, "42.50 across 3 expenses")
	assert.Contains(t, text, "Open goals: 2")
}

func TestHelpListsVisibleCommands(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.command(t, "/help")(h.message("/help")))
	text := h.api.last(t).text()
	assert.Contains(t, text, "/expense - Record an expense")
	assert.Contains(t, text, "/report")
	assert.NotContains(t, text, "/endpoints")
}

func TestReportTableWithoutAssistant(t *testing.T) {
	h := newHarness(t, nil)
	h.lg.totals = []ledger.CategoryTotal{
		{Category: "Food", TotalCents: 1250, Count: 1},
		{Category: "Rent & Bills", TotalCents: 90000, Count: 2},
	}
	require.NoError(t, h.command(t, "/report")(h.message("/report")))
	text := h.api.last(t).text()
	assert.Contains(t, text, "Rent &amp; Bills: 900.00 (2)")
	assert.Contains(t, text, "Food: 12.50 (1)")
	assert.Less(t, strings.Index(text, "Rent"), strings.Index(text, "Food"))
	assert.Contains(t, text, "912.50")
}

func TestReportNarratedByAssistant(t *testing.T) {
	as := &fakeAssistant{enabled: true, answer: "You spent wisely."}
	h := newHarness(t, as)
	h.lg.expenses = []ledger.Expense{{Category: "Food", AmountCents: 500}}

	require.NoError(t, h.command(t, "/report")(h.message("/report")))
	assert.Equal(t, "You spent wisely.", h.api.last(t).text())
	require.Len(t, as.reports, 1)
	assert.Len(t, as.reports[0].Expenses, 1)
}

func TestReportFallsBackWhenAssistantFails(t *testing.T) {
	as := &fakeAssistant{enabled: true, err: errors.New("boom")}
	h := newHarness(t, as)
	h.lg.expenses = []ledger.Expense{{Category: "Food", AmountCents: 500}}
	h.lg.totals = []ledger.CategoryTotal{{Category: "Food", TotalCents: 500, Count: 1}}

	require.NoError(t, h.command(t, "/report")(h.message("/report")))
	assert.Contains(t, h.api.last(t).text(), "Spending in the last 30 days")
}

func TestUnknownText(t *testing.T) {
	t.Run("without assistant", func(t *testing.T) {
		h := newHarness(t, nil)
		require.NoError(t, h.bot.UnknownText()(h.message("what now?")))
		assert.Contains(t, h.api.last(t).text(), "/help")
	})
	t.Run("with assistant", func(t *testing.T) {
		as := &fakeAssistant{enabled: true, answer: "Try /budget."}
		h := newHarness(t, as)
		require.NoError(t, h.bot.UnknownText()(h.message("how do I save?")))
		assert.Equal(t, []string{"how do I save?"}, as.asked)
		assert.Equal(t, "Try /budget.", h.api.last(t).text())
	})
	t.Run("assistant error", func(t *testing.T) {
		as := &fakeAssistant{enabled: true, err: &assistant.APIError{Status: 500}}
		h := newHarness(t, as)
		require.NoError(t, h.bot.UnknownText()(h.message("hi")))
		assert.Contains(t, h.api.last(t).text(), "can't answer")
	})
}

func TestEnsureUserStoresOncePerName(t *testing.T) {
	h := newHarness(t, nil)
	next := func(tele.Context) error { return nil }
	mw := h.bot.EnsureUser(next)

	require.NoError(t, mw(h.message("a")))
	require.NoError(t, mw(h.message("b")))
	require.Len(t, h.lg.users, 1)
	assert.Equal(t, ledger.User{ID: testUser, Username: "ada", FirstName: "Ada"}, h.lg.users[0])
}

func TestEnsureUserFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, nil)
	h.lg.err = errors.New("db down")
	called := 0
	mw := h.bot.EnsureUser(func(tele.Context) error { called++; return nil })

	require.NoError(t, mw(h.message("a")))
	require.NoError(t, mw(h.message("b")))
	assert.Equal(t, 2, called)
	assert.Len(t, h.lg.users, 2)
}

func TestInputOf(t *testing.T) {
	h := newHarness(t, nil)

	in, ok := inputOf(h.message("hi"))
	require.True(t, ok)
	assert.Equal(t, state.Text("hi"), in)

	photo := h.tb.NewContext(tele.Update{Message: &tele.Message{
		Chat:  &tele.Chat{ID: testChat},
		Photo: &tele.Photo{File: tele.File{FileID: "photo-1"}},
	}})
	in, ok = inputOf(photo)
	require.True(t, ok)
	assert.Equal(t, state.Media("photo-1"), in)

	doc := h.tb.NewContext(tele.Update{Message: &tele.Message{
		Chat:     &tele.Chat{ID: testChat},
		Document: &tele.Document{File: tele.File{FileID: "doc-1"}, MIME: "image/png"},
	}})
	in, ok = inputOf(doc)
	require.True(t, ok)
	assert.Equal(t, state.Media("doc-1"), in)

	in, ok = inputOf(h.press(CallbackFlow, "confirm"))
	require.True(t, ok)
	assert.Equal(t, state.Action("confirm"), in)

	_, ok = inputOf(h.press(CallbackMenu, flows.Expense))
	assert.False(t, ok)
}

func TestReplyMarkupPutsControlsLast(t *testing.T) {
	rm := replyMarkup(state.Reply{Text: "pick", Buttons: []state.Button{
		{Action: "pick:A", Label: "A"},
		{Action: "pick:B", Label: "B"},
		{Action: "pick:C", Label: "C"},
		{Action: state.ActionSkip, Label: "Skip"},
		{Action: state.ActionCancel, Label: "Cancel"},
	}})
	require.NotNil(t, rm)
	require.Len(t, rm.InlineKeyboard, 3)
	assert.Len(t, rm.InlineKeyboard[0], 2)
	assert.Len(t, rm.InlineKeyboard[1], 1)
	assert.Equal(t, "Skip", rm.InlineKeyboard[2][0].Text)
	assert.Equal(t, "Cancel", rm.InlineKeyboard[2][1].Text)

	assert.Nil(t, replyMarkup(state.Reply{Text: "plain"}))
}

func TestWalletCard(t *testing.T) {
	card := walletCard("Escrow wallet", oneshot.Wallet{
		ID:             "w1",
		AccountAddress: "0x" + strings.Repeat("a", 40),
		Balance:        &oneshot.BalanceDetails{Balance: "1500000000000000000", Decimals: 18},
	}, oneshot.SepoliaChainID)
	assert.Contains(t, card, "Sepolia Testnet")
	assert.Contains(t, card, "<code>w1</code>")
	assert.Contains(t, card, "<b>Balance:</b> 1.5")

	card = walletCard("Wallet balance", oneshot.Wallet{ID: "w2"}, 999)
	assert.Contains(t, card, "Chain 999")
	assert.Contains(t, card, "N/A")
}

type fakeGateway struct {
	wallets []oneshot.Wallet
	filters []oneshot.WalletFilter
}

func (g *fakeGateway) ListWallets(_ context.Context, f oneshot.WalletFilter) ([]oneshot.Wallet, error) {
	g.filters = append(g.filters, f)
	var out []oneshot.Wallet
	for _, w := range g.wallets {
		if f.Matches(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (g *fakeGateway) ListEndpoints(context.Context, oneshot.EndpointFilter) ([]oneshot.Endpoint, error) {
	return nil, nil
}

func TestWalletLinksExplorer(t *testing.T) {
	h := newHarness(t, nil)
	addr := "0x" + strings.Repeat("a", 40)
	h.bot.gateway = &fakeGateway{wallets: []oneshot.Wallet{{ID: "w1", AccountAddress: addr}}}
	h.bot.explorer = "https://sepolia.etherscan.io"

	require.NoError(t, h.bot.cmdWallet(h.message("/wallet")))
	msg := h.api.last(t)
	assert.Contains(t, msg.text(), "Escrow wallet")
	kb := msg.keyboard(t)
	require.Len(t, kb.Rows, 1)
	assert.True(t, strings.HasPrefix(kb.Rows[0][0].URL, "https://sepolia.etherscan.io/address/0x"))
	assert.True(t, strings.EqualFold(kb.Rows[0][0].URL, "https://sepolia.etherscan.io/address/"+addr))
}

func TestCheckBalance(t *testing.T) {
	h := newHarness(t, nil)
	escrow := "0x" + strings.Repeat("a", 40)
	other := "0x" + strings.Repeat("b", 40)
	gw := &fakeGateway{wallets: []oneshot.Wallet{
		{ID: "w1", AccountAddress: escrow},
		{ID: "w2", AccountAddress: other, Balance: &oneshot.BalanceDetails{Balance: "2", Decimals: 0}},
	}}
	h.bot.gateway = gw

	withArgs := func(payload string) tele.Context {
		c := h.message(strings.TrimSpace("/checkbalance " + payload))
		c.Message().Payload = payload
		return c
	}

	require.NoError(t, h.bot.cmdCheckBalance(withArgs("")))
	assert.Contains(t, h.api.last(t).text(), "Escrow wallet")
	assert.Contains(t, h.api.last(t).text(), "w1")

	require.NoError(t, h.bot.cmdCheckBalance(withArgs(other)))
	msg := h.api.last(t).text()
	assert.Contains(t, msg, "Wallet balance")
	assert.Contains(t, msg, "w2")
	assert.Equal(t, other, gw.filters[len(gw.filters)-1].Address)

	calls := len(gw.filters)
	require.NoError(t, h.bot.cmdCheckBalance(withArgs("abc123")))
	assert.Contains(t, h.api.last(t).text(), "Invalid address")
	assert.Len(t, gw.filters, calls)

	require.NoError(t, h.bot.cmdCheckBalance(withArgs("0x"+strings.Repeat("c", 40))))
	assert.Contains(t, h.api.last(t).text(), "No wallet found")
}

func TestEndpointList(t *testing.T) {
	blocks := endpointList([]oneshot.Endpoint{{
		ID:              "ep-1",
		Name:            "Transfer <x>",
		ChainID:         oneshot.SepoliaChainID,
		ContractAddress: "0x" + strings.Repeat("b", 40),
		FunctionName:    "transfer",
		Inputs:          []oneshot.Param{{Name: "to", Type: "address"}},
	}})
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[1], "<code>ep-1</code>")
	assert.Contains(t, blocks[1], "Transfer &lt;x&gt;")
	assert.Contains(t, blocks[1], "<code>to</code> (address)")
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, splitMessage("  ", 10))
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	parts := splitMessage("line one\nline two\nline three", 12)
	assert.Equal(t, []string{"line one", "line two", "line three"}, parts)

	parts = splitMessage(strings.Repeat("x", 25), 10)
	assert.Equal(t, []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)}, parts)
}

type fakeSender struct {
	to   []tele.Recipient
	what []interface{}
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.to = append(f.to, to)
	f.what = append(f.what, what)
	return &tele.Message{}, f.err
}

func TestNotifier(t *testing.T) {
	s := &fakeSender{}
	n := NewNotifier(s, nil)
	ctx := context.Background()

	require.NoError(t, n.SendText(ctx, 5, "<b>done</b>"))
	require.NoError(t, n.SendPhoto(ctx, 6, "file-1", "caption"))

	require.Len(t, s.to, 2)
	assert.Equal(t, "5", s.to[0].Recipient())
	assert.Equal(t, "<b>done</b>", s.what[0])
	photo, ok := s.what[1].(*tele.Photo)
	require.True(t, ok)
	assert.Equal(t, "file-1", photo.FileID)
	assert.Equal(t, "caption", photo.Caption)

	s.err = errors.New("bad file")
	assert.Error(t, n.SendPhoto(ctx, 6, "file-1", "caption"))
}
