package correlator

import (
	"fmt"
	"strings"

	"github.com/m3rciful/penny/core/telegram/format"
	"github.com/m3rciful/penny/internal/memo"
	"github.com/m3rciful/penny/internal/oneshot"
	"github.com/m3rciful/penny/internal/units"
)

func (c *Correlator) tokenCard(m memo.Memo, address string) string {
	lines := []string{"<b>🪙 New token deployed!</b>", ""}
	if t := m.Token; t != nil {
		lines = append(lines, format.Field("Name", t.Name), format.Field("Ticker", t.Ticker))
		if t.Description != "" {
			lines = append(lines, format.Field("Description", t.Description))
		}
	}
	if address != "" {
		lines = append(lines, "<b>Address:</b> "+format.Link(c.explorer+"/token/"+address, units.ChecksumAddress(address)))
	} else {
		lines = append(lines, "<b>Address:</b> pending, check the explorer shortly.")
	}
	return strings.Join(lines, "\n")
}

func (c *Correlator) transferText(cb oneshot.Callback, m memo.Memo) string {
	var b strings.Builder
	b.WriteString("🎉 <b>Token transfer successful!</b>\n")
	if m.Note != "" {
		fmt.Fprintf(&b, "\n%s\n", format.Escape(m.Note))
	}
	b.WriteString(c.reference(cb))
	return b.String()
}

func (c *Correlator) nativeText(cb oneshot.Callback, m memo.Memo) string {
	var b strings.Builder
	if t := m.Transfer; t != nil && t.Amount != "" && t.Recipient != "" {
		fmt.Fprintf(&b, "✅ %s to %s.\n", format.Bold("Sent "+t.Amount), format.Code(t.Recipient))
	} else {
		b.WriteString("✅ <b>Your native currency transfer is complete.</b>\n")
	}
	b.WriteString(c.reference(cb))
	return b.String()
}

func (c *Correlator) genericText(cb oneshot.Callback, m memo.Memo) string {
	text := "✅ <b>Transaction confirmed.</b>\n"
	if m.Note != "" {
		text = "✅ " + format.Escape(m.Note) + "\n"
	}
	return text + c.reference(cb)
}

func (c *Correlator) reference(cb oneshot.Callback) string {
	if hash := cb.TxHash(); hash != "" {
		return "\nTransaction: " + format.Link(c.explorer+"/tx/"+hash, units.ShortAddress(hash))
	}
	return "\nExecution ID: " + format.Code(cb.Data.TransactionExecutionID)
}

func failureText(m memo.Memo) string {
	what := "transaction"
	switch m.TxType {
	case memo.TokenCreation:
		what = "token deployment"
		if m.Token != nil && m.Token.Name != "" {
			what = "deployment of " + format.Escape(m.Token.Name)
		}
	case memo.TokenTransfer:
		what = "token transfer"
	case memo.NativeTransfer:
		what = "transfer"
	}
	return fmt.Sprintf("❌ Your %s failed on chain. Nothing was sent; please try again later.", what)
}
