// Package flows defines the bot's conversations as state tables run by the
// core/state engine.
package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/m3rciful/penny/core/state"
	"github.com/m3rciful/penny/internal/ledger"
	"github.com/m3rciful/penny/internal/oneshot"
)

// Flow ids; each is also the command and menu action that starts it.
const (
	DeployToken   = "deploytoken"
	TokenTransfer = "tokentransfer"
	Expense       = "expense"
	Budget        = "budget"
	Goal          = "goal"
)

// Shared button actions.
const (
	ActionConfirm = "confirm"
	ActionPrefix  = "pick:"
)

// Gateway is the subset of the transaction API the flows call.
type Gateway interface {
	FindEndpoint(ctx context.Context, f oneshot.EndpointFilter) (oneshot.Endpoint, error)
	CreateEndpoint(ctx context.Context, spec oneshot.EndpointSpec) (oneshot.Endpoint, error)
	Execute(ctx context.Context, endpointID string, params map[string]any, memo string) (oneshot.Execution, error)
	ListWallets(ctx context.Context, f oneshot.WalletFilter) ([]oneshot.Wallet, error)
}

// Ledger is the subset of the expense store the flows write to.
type Ledger interface {
	AddExpense(ctx context.Context, e ledger.Expense) (ledger.Expense, error)
	AddBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error)
	AddGoal(ctx context.Context, g ledger.Goal) (ledger.Goal, error)
}

// Deps are the collaborators of the terminal actions. A nil Gateway or
// Ledger leaves the flows that need it unregistered.
type Deps struct {
	Gateway Gateway
	Chain   oneshot.Config
	Ledger  Ledger
	Now     func() time.Time
}

// ErrNoWallet is returned when the business has no escrow wallet on the chain.
var ErrNoWallet = errors.New("flows: no escrow wallet on chain")

// Register adds every flow whose dependencies are present.
func Register(e *state.Engine, d Deps) error {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Gateway != nil {
		if err := state.Register(e, deployFlow(d)); err != nil {
			return err
		}
		if err := state.Register(e, transferFlow(d)); err != nil {
			return err
		}
	}
	if d.Ledger != nil {
		if err := state.Register(e, expenseFlow(d)); err != nil {
			return err
		}
		if err := state.Register(e, budgetFlow(d)); err != nil {
			return err
		}
		if err := state.Register(e, goalFlow(d)); err != nil {
			return err
		}
	}
	return nil
}

// wallet picks the first escrow wallet on the configured chain.
func wallet(ctx context.Context, gw Gateway, chainID int64) (oneshot.Wallet, error) {
	ws, err := gw.ListWallets(ctx, oneshot.WalletFilter{ChainID: chainID})
	if err != nil {
		return oneshot.Wallet{}, err
	}
	if len(ws) == 0 {
		return oneshot.Wallet{}, ErrNoWallet
	}
	return ws[0], nil
}

func pickButtons(labels []string) []state.Button {
	out := make([]state.Button, 0, len(labels))
	for _, l := range labels {
		out = append(out, state.Button{Action: ActionPrefix + l, Label: l})
	}
	return out
}

// picked returns the value of a pick: action button, or the trimmed text.
func picked(in state.Input) string {
	if in.Kind == state.InputAction {
		v, _ := strings.CutPrefix(in.Action, ActionPrefix)
		return v
	}
	return trim(in.Text)
}
