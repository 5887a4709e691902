package assistant

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/penny/internal/ledger"
)

const chatPrompt = `You are Penny, a friendly financial assistant and crypto token management bot.
Your primary goals are to:
1. Help users manage their finances through expense tracking, budgeting, and goal setting.
2. Assist with blockchain operations like transferring tokens and deploying new tokens.
3. Provide helpful, concise responses to questions about finances and blockchain.

You may be given the user's recent expenses. Comment on spending patterns or suggest savings when relevant.

Keep responses brief. When users want a bot feature, point them to:
/expense, /budget, /goal, /hello, /report, /wallet, /tokentransfer, /deploytoken, /endpoints, /time, /help.`

const reportPrompt = `You are Penny, a financial assistant. You have the user's recent expenses, active budgets and goals.
Write a short financial report that summarises spending, compares it with the budgets, assesses progress
towards the goals and offers a few actionable suggestions. Be encouraging and easy to understand.
Use plain text with simple bullet points.`

// expenseContext renders recent expenses appended to a user message.
func expenseContext(expenses []ledger.Expense) string {
	if len(expenses) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nHere are your recent expenses for context:\n")
	for _, e := range expenses {
		fmt.Fprintf(&b, "- Amount: %s, Category: %s, Date: %s\n",
			ledger.FormatMoney(e.AmountCents), e.Category, e.SpentAt.Format(time.DateOnly))
	}
	return b.String()
}

// ReportData is what a financial report is written from.
type ReportData struct {
	Expenses []ledger.Expense
	Budgets  []ledger.BudgetProgress
	Goals    []ledger.Goal
}

// Empty reports whether there is nothing to write about.
func (d ReportData) Empty() bool {
	return len(d.Expenses) == 0 && len(d.Budgets) == 0 && len(d.Goals) == 0
}

func (d ReportData) render() string {
	var b strings.Builder
	b.WriteString("Here is my financial data:\n\n")
	if len(d.Expenses) > 0 {
		b.WriteString("Recent expenses:\n")
		for _, e := range d.Expenses {
			desc := ""
			if e.Description != "" {
				desc = ", Description: " + e.Description
			}
			fmt.Fprintf(&b, "- Amount: %s, Category: %s%s, Date: %s\n",
				ledger.FormatMoney(e.AmountCents), e.Category, desc, e.SpentAt.Format(time.DateOnly))
		}
	} else {
		b.WriteString("No recent expenses found.\n")
	}
	b.WriteString("\n")
	if len(d.Budgets) > 0 {
		b.WriteString("Active budgets:\n")
		for _, p := range d.Budgets {
			fmt.Fprintf(&b, "- Category: %s, Amount: %s, Spent: %s, Period: %s, Ends: %s\n",
				p.Category, ledger.FormatMoney(p.AmountCents), ledger.FormatMoney(p.SpentCents),
				p.Period, p.EndDate.Format(time.DateOnly))
		}
	} else {
		b.WriteString("No active budgets found.\n")
	}
	b.WriteString("\n")
	if len(d.Goals) > 0 {
		b.WriteString("Active goals:\n")
		for _, g := range d.Goals {
			deadline := ""
			if g.Deadline != nil {
				deadline = ", Deadline: " + g.Deadline.Format(time.DateOnly)
			}
			fmt.Fprintf(&b, "- Name: %s, Target: %s, Saved: %s%s\n",
				g.Name, ledger.FormatMoney(g.TargetCents), ledger.FormatMoney(g.SavedCents), deadline)
		}
	} else {
		b.WriteString("No active goals found.\n")
	}
	return b.String()
}
