package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/state"
	tg "github.com/m3rciful/penny/core/telegram"
	"github.com/m3rciful/penny/core/telegram/commands"
	"github.com/m3rciful/penny/core/telegram/format"
	tghelpers "github.com/m3rciful/penny/core/telegram/helpers"
	"github.com/m3rciful/penny/core/telegram/keyboard"
	"github.com/m3rciful/penny/internal/assistant"
	"github.com/m3rciful/penny/internal/flows"
	"github.com/m3rciful/penny/internal/ledger"
	"github.com/m3rciful/penny/internal/oneshot"
	"github.com/m3rciful/penny/internal/units"

	tele "gopkg.in/telebot.v4"
)

const (
	reportWindow   = 30 * 24 * time.Hour
	reportExpenses = 50
)

// menu lists the conversations offered on /start, in display order.
var menu = []struct {
	flow  string
	label string
	desc  string
}{
	{flows.DeployToken, "🚀 Deploy a Token", "Deploy your own token"},
	{flows.TokenTransfer, "🔄 Transfer Tokens", "Transfer tokens to an address"},
	{flows.Expense, "💸 Add Expense", "Record an expense"},
	{flows.Budget, "📊 Set Budget", "Set a spending budget"},
	{flows.Goal, "🎯 New Goal", "Set a savings goal"},
}

// Register adds the commands and callbacks to reg. Conversation commands
// are only added for flows the engine knows.
func (b *Bot) Register(reg *tg.Registry) {
	b.reg = reg
	reg.RegisterCommand("/start", commands.Command{Handler: b.cmdStart, Description: "Show the main menu"})
	reg.RegisterCommand("/hello", commands.Command{Handler: b.cmdHello, Description: "Your financial summary", Aliases: []string{"whoami"}})
	reg.RegisterCommand("/help", commands.Command{Handler: b.cmdHelp, Description: "List commands"})
	reg.RegisterCommand("/cancel", commands.Command{Handler: b.cmdCancel, Description: "Cancel the current action"})
	reg.RegisterCommand("/report", commands.Command{Handler: b.cmdReport, Description: "Spending report for the last 30 days"})
	reg.RegisterCommand("/wallet", commands.Command{Handler: b.cmdWallet, Description: "Escrow wallet info", Aliases: []string{"escrowinfo"}})
	reg.RegisterCommand("/checkbalance", commands.Command{Handler: b.cmdCheckBalance, Description: "Balance of a wallet: /checkbalance [address]"})
	reg.RegisterCommand("/endpoints", commands.Command{Handler: b.cmdEndpoints, Description: "List transaction endpoints", AdminOnly: true, Aliases: []string{"transactionendpoints"}})
	reg.RegisterCommand("/time", commands.Command{Handler: b.cmdTime, Description: "Current time", Aliases: []string{"checktime"}})

	known := make(map[string]bool)
	for _, id := range b.engine.Flows() {
		known[id] = true
	}
	for _, m := range menu {
		if !known[m.flow] {
			continue
		}
		flowID := m.flow
		reg.RegisterCommand("/"+flowID, commands.Command{
			Handler:     func(c tele.Context) error { return b.start(c, flowID) },
			Description: m.desc,
		})
	}

	for key, h := range map[string]tele.HandlerFunc{
		CallbackFlow: b.flowCallback,
		CallbackMenu: b.menuCallback,
	} {
		if err := reg.RegisterCallback(key, h); err != nil {
			logger.Warn(context.Background(), logger.ComponentTGWire, "callback.register",
				slog.String("key", key),
				slog.Any("err", err),
			)
		}
	}
	reg.SetCallbackNotFound(b.UnknownCallback())
}

func (b *Bot) cmdStart(c tele.Context) error {
	known := make(map[string]bool)
	for _, id := range b.engine.Flows() {
		known[id] = true
	}
	var buttons []keyboard.InlineBtn
	for _, m := range menu {
		if known[m.flow] {
			buttons = append(buttons, keyboard.InlineBtn{Text: m.label, Unique: CallbackMenu, Data: m.flow})
		}
	}
	text := "👋 I'm <b>Penny</b>. I can deploy and transfer tokens and keep track of your spending.\n\n" +
		"Pick an action below or send /help to see every command."
	return tghelpers.SendHTML(c, text, keyboard.Column(buttons...))
}

func (b *Bot) cmdHelp(c tele.Context) error {
	var lines []string
	if b.reg != nil {
		for _, cmd := range b.reg.ListCommands(true) {
			lines = append(lines, "/"+cmd.Text+" - "+format.Escape(cmd.Description))
		}
	}
	return tghelpers.SendHTML(c, "<b>What I can do</b>\n\n"+strings.Join(lines, "\n"))
}

func (b *Bot) cmdCancel(c tele.Context) error {
	chat, ok := chatOf(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if b.assistant != nil {
		b.assistant.Forget(chat.ID)
	}
	reply, cancelled, err := b.engine.Cancel(ctx, chat)
	switch {
	case errors.Is(err, state.ErrBusy):
		return tghelpers.SendText(c, replyBusy)
	case err != nil:
		logger.Error(ctx, logger.ComponentFlow, "flow.cancel", slog.String("status", "fail"), slog.Any("err", err))
		return tghelpers.SendText(c, replyFailed)
	case !cancelled:
		return tghelpers.SendText(c, "Nothing to cancel.")
	}
	return b.sendReply(c, reply)
}

func (b *Bot) cmdHello(c tele.Context) error {
	u := c.Sender()
	if u == nil {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "👋 Hi %s! I'm Penny, your personal financial assistant.\n\n", format.Escape(displayName(u)))
	if b.ledger != nil {
		ctx := tghelpers.BuildContext(c)
		sum, err := b.ledger.Summarize(ctx, u.ID, b.now())
		if err != nil {
			logger.Error(ctx, logger.ComponentLedger, "ledger.summary", slog.String("status", "fail"), slog.Any("err", err))
		} else {
			sb.WriteString("<b>This month</b>\n")
			fmt.Fprintf(&sb, "• Spent: %s across %d expenses\n", ledger.FormatMoney(sum.MonthCents), sum.MonthCount)
			fmt.Fprintf(&sb, "• Active budgets: %d\n", sum.ActiveBudgets)
			fmt.Fprintf(&sb, "• Open goals: %d\n\n", sum.OpenGoals)
		}
	}
	sb.WriteString("Send /start for the menu or /help for every command.")
	return tghelpers.SendHTML(c, sb.String())
}

func (b *Bot) cmdReport(c tele.Context) error {
	u := c.Sender()
	if u == nil {
		return nil
	}
	if b.ledger == nil {
		return tghelpers.SendText(c, "Expense tracking is not configured.")
	}
	ctx := tghelpers.BuildContext(c)
	now := b.now()

	if b.assistant != nil && b.assistant.Enabled() {
		data, err := b.reportData(ctx, u.ID, now)
		if err != nil {
			logger.Error(ctx, logger.ComponentLedger, "ledger.report", slog.String("status", "fail"), slog.Any("err", err))
			return tghelpers.SendText(c, replyFailed)
		}
		if data.Empty() {
			return tghelpers.SendText(c, "I couldn't find any expenses, budgets or goals yet. "+
				"Add some with /expense, /budget or /goal first.")
		}
		_ = c.Notify(tele.Typing)
		text, err := b.assistant.Report(ctx, data)
		if err == nil {
			return sendLong(c, text)
		}
		logger.Warn(ctx, logger.ComponentAssistant, "assistant.report",
			slog.String("status", "fallback"),
			slog.Any("err", err),
		)
	}

	totals, err := b.ledger.SpendingByCategory(ctx, u.ID, now.Add(-reportWindow))
	if err != nil {
		logger.Error(ctx, logger.ComponentLedger, "ledger.report", slog.String("status", "fail"), slog.Any("err", err))
		return tghelpers.SendText(c, replyFailed)
	}
	return tghelpers.SendHTML(c, spendingTable(totals))
}

func (b *Bot) reportData(ctx context.Context, userID int64, now time.Time) (assistant.ReportData, error) {
	var (
		d   assistant.ReportData
		err error
	)
	if d.Expenses, err = b.ledger.RecentExpenses(ctx, userID, reportExpenses); err != nil {
		return d, err
	}
	if d.Budgets, err = b.ledger.Budgets(ctx, userID, now); err != nil {
		return d, err
	}
	if d.Goals, err = b.ledger.Goals(ctx, userID); err != nil {
		return d, err
	}
	return d, nil
}

// spendingTable renders per-category totals, largest first.
func spendingTable(totals []ledger.CategoryTotal) string {
	if len(totals) == 0 {
		return "📊 No expenses in the last 30 days. Record one with /expense."
	}
	sorted := append([]ledger.CategoryTotal(nil), totals...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TotalCents > sorted[j].TotalCents })
	var (
		sb  strings.Builder
		sum int64
	)
	sb.WriteString("📊 <b>Spending in the last 30 days</b>\n\n")
	for _, t := range sorted {
		sum += t.TotalCents
		fmt.Fprintf(&sb, "• %s: %s (%d)\n", format.Escape(t.Category), ledger.FormatMoney(t.TotalCents), t.Count)
	}
	fmt.Fprintf(&sb, "\n<b>Total:</b> %s", ledger.FormatMoney(sum))
	return sb.String()
}

func (b *Bot) cmdWallet(c tele.Context) error {
	return b.showWallet(c, "")
}

// cmdCheckBalance shows the escrow wallet, or the wallet at the address
// given as the first argument.
func (b *Bot) cmdCheckBalance(c tele.Context) error {
	args := c.Args()
	if len(args) == 0 {
		return b.showWallet(c, "")
	}
	if !units.IsAddress(args[0]) {
		return tghelpers.SendText(c, "❌ Invalid address. Use /checkbalance 0x followed by 40 hex characters.")
	}
	return b.showWallet(c, args[0])
}

func (b *Bot) showWallet(c tele.Context, address string) error {
	if b.gateway == nil {
		return tghelpers.SendText(c, "The transaction gateway is not configured.")
	}
	ctx := tghelpers.BuildContext(c)
	wallets, err := b.gateway.ListWallets(ctx, oneshot.WalletFilter{ChainID: b.chain.ChainID, Address: address})
	if err != nil {
		logger.Error(ctx, logger.ComponentGateway, "gateway.wallets", slog.String("status", "fail"), slog.Any("err", err))
		return tghelpers.SendText(c, "❌ Could not fetch the wallet, please try again later.")
	}
	if len(wallets) == 0 {
		if address != "" {
			return tghelpers.SendText(c, "No wallet found with that address.")
		}
		return tghelpers.SendText(c, fmt.Sprintf("No escrow wallet found on %s.", chainName(b.chain.ChainID)))
	}
	w := wallets[0]
	title := "Escrow wallet"
	if address != "" {
		title = "Wallet balance"
	}
	var links *tele.ReplyMarkup
	if b.explorer != "" && w.AccountAddress != "" {
		links = keyboard.Column(keyboard.InlineBtn{
			Text: "🔎 View on explorer",
			URL:  b.explorer + "/address/" + units.ChecksumAddress(w.AccountAddress),
		})
	}
	return tghelpers.SendHTML(c, walletCard(title, w, b.chain.ChainID), links)
}

func walletCard(title string, w oneshot.Wallet, chainID int64) string {
	balance := "N/A"
	if w.Balance != nil && w.Balance.Balance != "" {
		balance = w.Balance.Balance
		if w.Balance.Decimals > 0 {
			if v, err := units.FormatUnits(w.Balance.Balance, w.Balance.Decimals); err == nil {
				balance = v
			}
		}
	}
	lines := []string{
		"✨ <b>" + format.Escape(title) + "</b>",
		"",
		format.Field("Network", chainName(chainID)),
		"<b>Wallet ID:</b> " + format.Code(w.ID),
		"<b>Address:</b> " + format.Code(units.ChecksumAddress(w.AccountAddress)),
		format.Field("Balance", balance),
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) cmdEndpoints(c tele.Context) error {
	if b.gateway == nil {
		return tghelpers.SendText(c, "The transaction gateway is not configured.")
	}
	ctx := tghelpers.BuildContext(c)
	eps, err := b.gateway.ListEndpoints(ctx, oneshot.EndpointFilter{ChainID: b.chain.ChainID})
	if err != nil {
		logger.Error(ctx, logger.ComponentGateway, "gateway.endpoints", slog.String("status", "fail"), slog.Any("err", err))
		return tghelpers.SendText(c, "❌ Could not fetch transaction endpoints, please try again later.")
	}
	if len(eps) == 0 {
		return tghelpers.SendText(c, "No transaction endpoints found.")
	}
	return sendLongHTML(c, endpointList(eps))
}

func endpointList(eps []oneshot.Endpoint) []string {
	blocks := make([]string, 0, len(eps)+1)
	blocks = append(blocks, "📋 <b>Transaction endpoints</b>")
	for _, e := range eps {
		lines := []string{
			"<b>ID:</b> " + format.Code(e.ID),
			format.Field("Name", e.Name),
			format.Field("Network", chainName(e.ChainID)),
			"<b>Contract:</b> " + format.Code(units.ShortAddress(e.ContractAddress)),
			"<b>Function:</b> " + format.Code(e.FunctionName),
		}
		if len(e.Inputs) > 0 {
			lines = append(lines, "<b>Parameters:</b>")
			for _, p := range e.Inputs {
				lines = append(lines, "  • "+format.Code(p.Name)+" ("+format.Escape(p.Type)+")")
			}
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return blocks
}

func (b *Bot) cmdTime(c tele.Context) error {
	now := b.now()
	return tghelpers.SendHTML(c, fmt.Sprintf("🕒 Current time: <b>%s</b>\n📅 Date: <b>%s</b>",
		now.Format(time.TimeOnly), now.Format(time.DateOnly)))
}

func (b *Bot) adminOnly(c tele.Context) error {
	return tghelpers.SendText(c, "⛔ This command is for the bot admin only.")
}

var chainNames = map[int64]string{
	1:        "Ethereum Mainnet",
	10:       "Optimism",
	137:      "Polygon Mainnet",
	8453:     "Base",
	42161:    "Arbitrum One",
	43114:    "Avalanche C-Chain",
	80002:    "Polygon Amoy",
	84532:    "Base Sepolia",
	11155111: "Sepolia Testnet",
}

func chainName(id int64) string {
	if n, ok := chainNames[id]; ok {
		return n
	}
	return fmt.Sprintf("Chain %d", id)
}

func displayName(u *tele.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "there"
}
