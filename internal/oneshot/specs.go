package oneshot

import "fmt"

// DeployerSpec describes the token deployer endpoint the bot can register
// when the business has none.
func DeployerSpec(cfg Config, escrowWalletID string) EndpointSpec {
	return EndpointSpec{
		ChainID:         cfg.ChainID,
		ContractAddress: cfg.DeployerContract,
		EscrowWalletID:  escrowWalletID,
		Name:            cfg.DeployerName,
		Description:     "This deploys ERC20 tokens on the Sepolia testnet.",
		FunctionName:    "deployToken",
		CallbackURL:     cfg.CallbackURL,
		StateMutability: "nonpayable",
		Inputs: []Param{
			{Name: "admin", Type: "address", Index: 0},
			{Name: "name", Type: "string", Index: 1},
			{Name: "ticker", Type: "string", Index: 2},
			{Name: "premint", Type: "uint", Index: 3},
		},
		Outputs: []Param{},
	}
}

// TransferSpec describes an ERC-20 transfer endpoint for tokenAddress.
func TransferSpec(cfg Config, tokenAddress, escrowWalletID string) EndpointSpec {
	short := tokenAddress
	if len(short) > 10 {
		short = short[:6] + "..." + short[len(short)-4:]
	}
	return EndpointSpec{
		ChainID:         cfg.ChainID,
		ContractAddress: tokenAddress,
		EscrowWalletID:  escrowWalletID,
		Name:            fmt.Sprintf("Token Transfer for %s", short),
		Description:     "ERC20 token transfer on Sepolia testnet",
		FunctionName:    "transfer",
		CallbackURL:     cfg.CallbackURL,
		StateMutability: "nonpayable",
		Inputs: []Param{
			{Name: "to", Type: "address", Index: 0},
			{Name: "amount", Type: "uint256", Index: 1},
		},
		Outputs: []Param{},
	}
}
