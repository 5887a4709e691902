package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/m3rciful/penny/core/state"
	"github.com/m3rciful/penny/internal/ledger"
)

const (
	expectMoney    = "Please send a positive amount with at most two decimals, e.g. 12.50."
	expectCategory = "Pick a category or type a new one (2 to 32 characters)."
	expectPeriod   = "Please choose daily, weekly, monthly or yearly."
	expectDeadline = "Please send a future date as YYYY-MM-DD, or press Skip."
	expectGoalName = "Please send a goal name of at least 3 characters."
	expectNote     = "Please send a short description, or press Skip."
)

func money(field string) func(string) (int64, error) {
	return func(s string) (int64, error) {
		cents, err := ledger.ParseMoney(s)
		if err != nil {
			return 0, state.Invalid(field, "")
		}
		return cents, nil
	}
}

func categoryRule[T any](set func(*T, string)) []state.Rule[T] {
	apply := func(f *T, in state.Input) error {
		v := picked(in)
		n := len([]rune(v))
		if n < 2 || n > 32 || v[0] == '/' {
			return state.Invalid("category", "")
		}
		set(f, v)
		return nil
	}
	return []state.Rule[T]{
		{On: state.OnAction(""), Apply: apply},
		{On: state.OnText(), Apply: apply},
	}
}

func categoryPrompt(text string) state.Reply {
	return state.Reply{Text: text, Buttons: pickButtons(ledger.DefaultCategories)}
}

type expenseFields struct {
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func expenseFlow(d Deps) state.Flow[expenseFields] {
	return state.Flow[expenseFields]{
		ID: Expense,
		Steps: []state.Step[expenseFields]{
			{
				State:  "expense_amount",
				Prompt: func(expenseFields) state.Reply { return state.Reply{Text: "💸 How much did you spend?"} },
				Expect: expectMoney,
				Rules: []state.Rule[expenseFields]{{
					On: state.OnText(),
					Apply: func(f *expenseFields, in state.Input) error {
						cents, err := money("amount")(in.Text)
						f.AmountCents = cents
						return err
					},
				}},
			},
			{
				State:  "expense_category",
				Prompt: func(expenseFields) state.Reply { return categoryPrompt("Which category?") },
				Expect: expectCategory,
				Rules:  categoryRule(func(f *expenseFields, v string) { f.Category = v }),
			},
			{
				State:  "expense_description",
				Prompt: func(expenseFields) state.Reply { return state.Reply{Text: "Add a short description, or skip."} },
				Expect: expectNote,
				Rules: []state.Rule[expenseFields]{
					textRule(minText("description", 1, expectNote), func(f *expenseFields, v string) { f.Description = v }),
				},
				Skip: func(f *expenseFields) { f.Description = "" },
			},
		},
		Finish: func(ctx context.Context, chat state.Chat, f expenseFields) (state.Reply, error) {
			e, err := d.Ledger.AddExpense(ctx, ledger.Expense{
				UserID:      chat.UserID,
				Category:    f.Category,
				AmountCents: f.AmountCents,
				Description: f.Description,
				SpentAt:     d.Now(),
			})
			if err != nil {
				return state.Reply{}, err
			}
			return state.Reply{Text: fmt.Sprintf("✅ Saved %s in %s.", ledger.FormatMoney(e.AmountCents), e.Category)}, nil
		},
	}
}

type budgetFields struct {
	Category    string        `json:"category"`
	AmountCents int64         `json:"amount_cents"`
	Period      ledger.Period `json:"period"`
}

func budgetFlow(d Deps) state.Flow[budgetFields] {
	periods := make([]string, 0, len(ledger.Periods))
	for _, p := range ledger.Periods {
		periods = append(periods, string(p))
	}
	setPeriod := func(f *budgetFields, in state.Input) error {
		p, err := ledger.ParsePeriod(picked(in))
		if err != nil {
			return state.Invalid("period", "")
		}
		f.Period = p
		return nil
	}
	return state.Flow[budgetFields]{
		ID: Budget,
		Steps: []state.Step[budgetFields]{
			{
				State:  "budget_category",
				Prompt: func(budgetFields) state.Reply { return categoryPrompt("📊 Which category is this budget for?") },
				Expect: expectCategory,
				Rules:  categoryRule(func(f *budgetFields, v string) { f.Category = v }),
			},
			{
				State: "budget_amount",
				Prompt: func(f budgetFields) state.Reply {
					return state.Reply{Text: fmt.Sprintf("How much can you spend on %s?", f.Category)}
				},
				Expect: expectMoney,
				Rules: []state.Rule[budgetFields]{{
					On: state.OnText(),
					Apply: func(f *budgetFields, in state.Input) error {
						cents, err := money("amount")(in.Text)
						f.AmountCents = cents
						return err
					},
				}},
			},
			{
				State: "budget_period",
				Prompt: func(budgetFields) state.Reply {
					return state.Reply{Text: "Over which period?", Buttons: pickButtons(periods)}
				},
				Expect: expectPeriod,
				Rules: []state.Rule[budgetFields]{
					{On: state.OnAction(""), Apply: setPeriod},
					{On: state.OnText(), Apply: setPeriod},
				},
			},
		},
		Finish: func(ctx context.Context, chat state.Chat, f budgetFields) (state.Reply, error) {
			b, err := d.Ledger.AddBudget(ctx, ledger.Budget{
				UserID:      chat.UserID,
				Category:    f.Category,
				AmountCents: f.AmountCents,
				Period:      f.Period,
				StartDate:   d.Now(),
			})
			if err != nil {
				return state.Reply{}, err
			}
			return state.Reply{Text: fmt.Sprintf("✅ Budget of %s for %s set until %s.",
				ledger.FormatMoney(b.AmountCents), b.Category, b.EndDate.Format(time.DateOnly))}, nil
		},
	}
}

type goalFields struct {
	Name        string `json:"name"`
	TargetCents int64  `json:"target_cents"`
	Deadline    string `json:"deadline,omitempty"`
	Category    string `json:"category,omitempty"`
}

func goalFlow(d Deps) state.Flow[goalFields] {
	return state.Flow[goalFields]{
		ID: Goal,
		Steps: []state.Step[goalFields]{
			{
				State:  "goal_name",
				Prompt: func(goalFields) state.Reply { return state.Reply{Text: "🎯 What are you saving for?"} },
				Expect: expectGoalName,
				Rules: []state.Rule[goalFields]{
					textRule(minText("name", 3, expectGoalName), func(f *goalFields, v string) { f.Name = v }),
				},
			},
			{
				State: "goal_target",
				Prompt: func(f goalFields) state.Reply {
					return state.Reply{Text: fmt.Sprintf("How much do you need for %s?", f.Name)}
				},
				Expect: expectMoney,
				Rules: []state.Rule[goalFields]{{
					On: state.OnText(),
					Apply: func(f *goalFields, in state.Input) error {
						cents, err := money("target")(in.Text)
						f.TargetCents = cents
						return err
					},
				}},
			},
			{
				State:  "goal_deadline",
				Prompt: func(goalFields) state.Reply { return state.Reply{Text: "By when? Send a date as YYYY-MM-DD, or skip."} },
				Expect: expectDeadline,
				Rules: []state.Rule[goalFields]{{
					On: state.OnText(),
					Apply: func(f *goalFields, in state.Input) error {
						t, err := time.ParseInLocation(time.DateOnly, trim(in.Text), time.Local)
						if err != nil || !t.After(d.Now()) {
							return state.Invalid("deadline", "")
						}
						f.Deadline = t.Format(time.DateOnly)
						return nil
					},
				}},
				Skip: func(f *goalFields) { f.Deadline = "" },
			},
			{
				State:  "goal_category",
				Prompt: func(goalFields) state.Reply { return categoryPrompt("Link it to a spending category, or skip.") },
				Expect: expectCategory,
				Rules:  categoryRule(func(f *goalFields, v string) { f.Category = v }),
				Skip:   func(f *goalFields) { f.Category = "" },
			},
		},
		Finish: func(ctx context.Context, chat state.Chat, f goalFields) (state.Reply, error) {
			g := ledger.Goal{UserID: chat.UserID, Name: f.Name, TargetCents: f.TargetCents}
			if f.Deadline != "" {
				t, err := time.ParseInLocation(time.DateOnly, f.Deadline, time.Local)
				if err != nil {
					return state.Reply{}, err
				}
				g.Deadline = &t
			}
			if f.Category != "" {
				c := f.Category
				g.Category = &c
			}
			saved, err := d.Ledger.AddGoal(ctx, g)
			if err != nil {
				return state.Reply{}, err
			}
			text := fmt.Sprintf("✅ Goal %q saved: %s", saved.Name, ledger.FormatMoney(saved.TargetCents))
			if saved.Deadline != nil {
				text += " by " + saved.Deadline.Format(time.DateOnly)
			}
			return state.Reply{Text: text + "."}, nil
		},
	}
}
