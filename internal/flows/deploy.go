package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/state"
	"github.com/m3rciful/penny/internal/memo"
	"github.com/m3rciful/penny/internal/oneshot"
	"github.com/m3rciful/penny/internal/units"
)

// ActionMenu returns the user to the start menu.
const ActionMenu = "menu"

type deployFields struct {
	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Premint     string `json:"premint"`
}

const (
	expectTokenName   = "Please send a name of at least 3 characters."
	expectTicker      = "The symbol must be 2 to 5 characters, e.g. PNY."
	expectDescription = "Please send a description of at least 10 characters."
	expectImage       = "Please upload an image for the token, or press Skip."
	expectPremint     = "Please send a whole number of tokens (0 or more), e.g. 1000."
)

func deployFlow(d Deps) state.Flow[deployFields] {
	return state.Flow[deployFields]{
		ID: DeployToken,
		Steps: []state.Step[deployFields]{
			{
				State:  "token_name",
				Prompt: func(deployFields) state.Reply { return state.Reply{Text: "What do you want to name your token?"} },
				Expect: expectTokenName,
				Rules: []state.Rule[deployFields]{
					textRule(minText("name", 3, expectTokenName), func(f *deployFields, v string) { f.Name = v }),
				},
			},
			{
				State: "token_ticker",
				Prompt: func(f deployFields) state.Reply {
					return state.Reply{Text: fmt.Sprintf("Great! What should the symbol for %s be (users see it next to their balance)?", f.Name)}
				},
				Expect: expectTicker,
				Rules: []state.Rule[deployFields]{
					textRule(ticker, func(f *deployFields, v string) { f.Ticker = v }),
				},
			},
			{
				State: "token_description",
				Prompt: func(deployFields) state.Reply {
					return state.Reply{Text: "Please provide a description for your token:"}
				},
				Expect: expectDescription,
				Rules: []state.Rule[deployFields]{
					textRule(minText("description", 10, expectDescription), func(f *deployFields, v string) { f.Description = v }),
				},
			},
			{
				State: "token_image",
				Prompt: func(deployFields) state.Reply {
					return state.Reply{Text: "Upload an image for the token (e.g. a logo), or skip."}
				},
				Expect: expectImage,
				Rules: []state.Rule[deployFields]{{
					On: state.OnMedia(),
					Apply: func(f *deployFields, in state.Input) error {
						if in.Media == "" {
							return state.Invalid("image", expectImage)
						}
						f.Image = in.Media
						return nil
					},
				}},
				Skip: func(f *deployFields) { f.Image = "" },
			},
			{
				State: "token_premint",
				Prompt: func(deployFields) state.Reply {
					return state.Reply{Text: "How many tokens should be minted to the admin wallet (whole number)?"}
				},
				Expect: expectPremint,
				Rules: []state.Rule[deployFields]{
					textRule(nonNegativeInteger("premint"), func(f *deployFields, v string) { f.Premint = v }),
				},
			},
		},
		Finish: func(ctx context.Context, chat state.Chat, f deployFields) (state.Reply, error) {
			return submitDeploy(ctx, d, chat, f)
		},
	}
}

func submitDeploy(ctx context.Context, d Deps, chat state.Chat, f deployFields) (state.Reply, error) {
	w, err := wallet(ctx, d.Gateway, d.Chain.ChainID)
	if err != nil {
		return state.Reply{}, err
	}
	ep, err := deployerEndpoint(ctx, d, w)
	if err != nil {
		return state.Reply{}, err
	}
	premint, err := units.ToBaseUnits(f.Premint, units.DefaultDecimals)
	if err != nil {
		return state.Reply{}, err
	}
	encoded, err := memo.Encode(memo.Memo{
		TxType: memo.TokenCreation,
		UserID: chat.UserID,
		ChatID: chat.ID,
		Token: &memo.TokenPayload{
			Name:        f.Name,
			Ticker:      f.Ticker,
			Description: f.Description,
			ImageID:     f.Image,
		},
	})
	if err != nil {
		return state.Reply{}, err
	}
	exec, err := d.Gateway.Execute(ctx, ep.ID, map[string]any{
		"admin":   w.AccountAddress,
		"name":    f.Name,
		"ticker":  f.Ticker,
		"premint": premint,
	}, encoded)
	if err != nil {
		return state.Reply{}, err
	}
	logger.Info(ctx, logger.ComponentFlow, "token.submitted",
		slog.String("status", "ok"),
		slog.String("tx_type", memo.TokenCreation.String()),
		slog.String("endpoint_id", ep.ID),
		slog.String("execution_id", exec.ID),
	)
	return state.Reply{
		Text:    fmt.Sprintf("✅ %s (%s) is being deployed! You will be notified once it's ready.", f.Name, f.Ticker),
		Buttons: []state.Button{{Action: ActionMenu, Label: "Back"}},
	}, nil
}

// deployerEndpoint finds the configured deployer, registering it when the
// business lacks one and a contract address is configured.
func deployerEndpoint(ctx context.Context, d Deps, w oneshot.Wallet) (oneshot.Endpoint, error) {
	ep, err := d.Gateway.FindEndpoint(ctx, oneshot.EndpointFilter{ChainID: d.Chain.ChainID, Name: d.Chain.DeployerName})
	if err == nil || !errors.Is(err, oneshot.ErrNotFound) || d.Chain.DeployerContract == "" {
		return ep, err
	}
	return d.Gateway.CreateEndpoint(ctx, oneshot.DeployerSpec(d.Chain, w.ID))
}
