package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/state"
	"github.com/m3rciful/penny/internal/memo"
	"github.com/m3rciful/penny/internal/oneshot"
	"github.com/m3rciful/penny/internal/units"
)

type transferFields struct {
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

const (
	expectToken     = "Please send the token contract address: 0x followed by 40 hex characters."
	expectRecipient = "Please send the recipient address: 0x followed by 40 hex characters."
	expectAmount    = "Please send a positive amount, e.g. 1.5."
	expectConfirm   = "Press Confirm to send the tokens, or Cancel to stop."
)

func transferFlow(d Deps) state.Flow[transferFields] {
	return state.Flow[transferFields]{
		ID: TokenTransfer,
		Steps: []state.Step[transferFields]{
			{
				State: "token_address",
				Prompt: func(transferFields) state.Reply {
					return state.Reply{Text: "🔄 Token transfer\n\nEnter the address of the token you want to transfer:"}
				},
				Expect: expectToken,
				Rules: []state.Rule[transferFields]{
					textRule(address("token_address"), func(f *transferFields, v string) { f.Token = v }),
				},
			},
			{
				State:  "recipient",
				Prompt: func(transferFields) state.Reply { return state.Reply{Text: "Now enter the recipient address:"} },
				Expect: expectRecipient,
				Rules: []state.Rule[transferFields]{
					textRule(address("recipient"), func(f *transferFields, v string) { f.Recipient = v }),
				},
			},
			{
				State: "amount",
				Prompt: func(transferFields) state.Reply {
					return state.Reply{Text: "How many tokens would you like to transfer?"}
				},
				Expect: expectAmount,
				Rules: []state.Rule[transferFields]{
					textRule(positiveDecimal("amount"), func(f *transferFields, v string) { f.Amount = v }),
				},
			},
			{
				State: "confirm",
				Prompt: func(f transferFields) state.Reply {
					return state.Reply{
						Text: fmt.Sprintf("Transfer summary\n\nToken: %s\nRecipient: %s\nAmount: %s tokens\n\nPlease confirm this transfer.",
							f.Token, f.Recipient, f.Amount),
						Buttons: []state.Button{{Action: ActionConfirm, Label: "Confirm ✅"}},
					}
				},
				Expect: expectConfirm,
				Rules: []state.Rule[transferFields]{
					{On: state.OnAction(ActionConfirm), Then: state.Next},
					{
						On: state.OnText(),
						Apply: func(_ *transferFields, in state.Input) error {
							switch strings.ToLower(trim(in.Text)) {
							case "yes", "confirm":
								return nil
							}
							return state.Invalid("confirm", "")
						},
					},
				},
			},
		},
		Finish: func(ctx context.Context, chat state.Chat, f transferFields) (state.Reply, error) {
			return submitTransfer(ctx, d, chat, f)
		},
	}
}

func submitTransfer(ctx context.Context, d Deps, chat state.Chat, f transferFields) (state.Reply, error) {
	w, err := wallet(ctx, d.Gateway, d.Chain.ChainID)
	if err != nil {
		return state.Reply{}, err
	}
	ep, err := transferEndpoint(ctx, d, f.Token, w)
	if err != nil {
		return state.Reply{}, err
	}
	amount, err := units.ToBaseUnits(f.Amount, units.DefaultDecimals)
	if err != nil {
		return state.Reply{}, err
	}
	encoded, err := memo.Encode(memo.Memo{
		TxType: memo.TokenTransfer,
		UserID: chat.UserID,
		ChatID: chat.ID,
		Note:   fmt.Sprintf("Transfer of %s tokens to %s", f.Amount, f.Recipient),
		Transfer: &memo.TransferPayload{
			TokenAddress: f.Token,
			Recipient:    f.Recipient,
			Amount:       f.Amount,
		},
	})
	if err != nil {
		return state.Reply{}, err
	}
	exec, err := d.Gateway.Execute(ctx, ep.ID, map[string]any{
		"to":     f.Recipient,
		"amount": amount,
	}, encoded)
	if err != nil {
		return state.Reply{}, err
	}
	logger.Info(ctx, logger.ComponentFlow, "transfer.submitted",
		slog.String("status", "ok"),
		slog.String("tx_type", memo.TokenTransfer.String()),
		slog.String("endpoint_id", ep.ID),
		slog.String("execution_id", exec.ID),
	)
	return state.Reply{Text: "✅ Token transfer initiated! You will be notified once the transaction is confirmed."}, nil
}

// transferEndpoint looks up the transfer endpoint of a token contract and
// registers one on first use.
func transferEndpoint(ctx context.Context, d Deps, token string, w oneshot.Wallet) (oneshot.Endpoint, error) {
	ep, err := d.Gateway.FindEndpoint(ctx, oneshot.EndpointFilter{
		ChainID:         d.Chain.ChainID,
		ContractAddress: token,
		FunctionName:    "transfer",
	})
	if !errors.Is(err, oneshot.ErrNotFound) {
		return ep, err
	}
	ep, err = d.Gateway.CreateEndpoint(ctx, oneshot.TransferSpec(d.Chain, token, w.ID))
	if err != nil {
		return oneshot.Endpoint{}, err
	}
	logger.Info(ctx, logger.ComponentFlow, "transfer.endpoint_created",
		slog.String("status", "ok"),
		slog.String("endpoint_id", ep.ID),
	)
	return ep, nil
}
