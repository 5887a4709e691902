package oneshot

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Param describes one contract function argument of an endpoint.
type Param struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// Endpoint is a transaction endpoint: a contract function the business has
// registered with the gateway.
type Endpoint struct {
	ID              string  `json:"id"`
	BusinessID      string  `json:"businessId,omitempty"`
	ChainID         int64   `json:"chainId"`
	ContractAddress string  `json:"contractAddress"`
	EscrowWalletID  string  `json:"escrowWalletId,omitempty"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	FunctionName    string  `json:"functionName"`
	CallbackURL     string  `json:"callbackUrl,omitempty"`
	PublicKey       string  `json:"publicKey,omitempty"`
	StateMutability string  `json:"stateMutability,omitempty"`
	Inputs          []Param `json:"inputs,omitempty"`
	Outputs         []Param `json:"outputs,omitempty"`
}

// EndpointSpec is the body for CreateEndpoint.
type EndpointSpec struct {
	ChainID         int64   `json:"chainId"`
	ContractAddress string  `json:"contractAddress"`
	EscrowWalletID  string  `json:"escrowWalletId"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	FunctionName    string  `json:"functionName"`
	CallbackURL     string  `json:"callbackUrl,omitempty"`
	StateMutability string  `json:"stateMutability"`
	Inputs          []Param `json:"inputs"`
	Outputs         []Param `json:"outputs"`
}

// EndpointFilter narrows ListEndpoints. Zero fields are not sent.
type EndpointFilter struct {
	ChainID         int64
	Name            string
	ContractAddress string
	FunctionName    string
	Page            int
	PageSize        int
}

// Matches applies the filter locally; the API treats some fields as hints.
func (f EndpointFilter) Matches(e Endpoint) bool {
	if f.ChainID != 0 && e.ChainID != 0 && e.ChainID != f.ChainID {
		return false
	}
	if f.Name != "" && e.Name != f.Name {
		return false
	}
	if f.ContractAddress != "" && !strings.EqualFold(e.ContractAddress, f.ContractAddress) {
		return false
	}
	if f.FunctionName != "" && e.FunctionName != f.FunctionName {
		return false
	}
	return true
}

// BalanceDetails is the wallet balance as reported by the gateway.
type BalanceDetails struct {
	Type     string `json:"type,omitempty"`
	Balance  string `json:"balance"`
	ChainID  int64  `json:"chainId,omitempty"`
	Decimals int    `json:"decimals,omitempty"`
}

// Wallet is an escrow wallet the gateway signs transactions with.
type Wallet struct {
	ID             string          `json:"id"`
	AccountAddress string          `json:"accountAddress"`
	ChainID        int64           `json:"chainId"`
	Name           string          `json:"name,omitempty"`
	Balance        *BalanceDetails `json:"accountBalanceDetails,omitempty"`
}

// WalletFilter narrows ListWallets. Address is compared case-insensitively.
type WalletFilter struct {
	ChainID int64
	Address string
}

// Matches applies the filter locally.
func (f WalletFilter) Matches(w Wallet) bool {
	if f.ChainID != 0 && w.ChainID != 0 && w.ChainID != f.ChainID {
		return false
	}
	return f.Address == "" || strings.EqualFold(w.AccountAddress, f.Address)
}

// Execution is the handle returned when a transaction is submitted.
type Execution struct {
	ID              string `json:"id"`
	TransactionID   string `json:"transactionId"`
	Status          string `json:"status"`
	ChainID         int64  `json:"chainId,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Memo            string `json:"memo,omitempty"`
}

type page[T any] struct {
	Response     []T `json:"response"`
	Page         int `json:"page"`
	PageSize     int `json:"pageSize"`
	TotalResults int `json:"totalResults"`
}

// Callback event names.
const (
	EventExecutionSuccess = "TransactionExecutionSuccess"
	EventExecutionFailure = "TransactionExecutionFailure"
)

// Log is one decoded contract event emitted during execution.
type Log struct {
	Name    string            `json:"name"`
	Address string            `json:"address,omitempty"`
	Args    []json.RawMessage `json:"args"`
}

// Arg returns positional argument i as text. String arguments are unquoted;
// numbers and other values are returned verbatim.
func (l Log) Arg(i int) (string, bool) {
	if i < 0 || i >= len(l.Args) {
		return "", false
	}
	raw := l.Args[i]
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	return strings.TrimSpace(string(raw)), len(raw) > 0
}

// Receipt is the subset of the chain receipt the bot renders.
type Receipt struct {
	Hash        string `json:"hash,omitempty"`
	BlockNumber int64  `json:"blockNumber,omitempty"`
	Status      int    `json:"status,omitempty"`
}

// CallbackData is the body of a gateway callback.
type CallbackData struct {
	BusinessID             string   `json:"businessId,omitempty"`
	ChainID                int64    `json:"chain,omitempty"`
	TransactionID          string   `json:"transactionId"`
	TransactionExecutionID string   `json:"transactionExecutionId"`
	Memo                   string   `json:"transactionExecutionMemo,omitempty"`
	Logs                   []Log    `json:"logs,omitempty"`
	Receipt                *Receipt `json:"transactionReceipt,omitempty"`
	Error                  string   `json:"error,omitempty"`
}

// Callback is the payload the gateway posts when an execution settles.
type Callback struct {
	EventName  string       `json:"eventName"`
	Data       CallbackData `json:"data"`
	Timestamp  int64        `json:"timestamp,omitempty"`
	APIVersion int          `json:"apiVersion,omitempty"`
	Signature  string       `json:"signature,omitempty"`
}

// Succeeded reports whether the callback is a success event.
func (c Callback) Succeeded() bool {
	return c.EventName == EventExecutionSuccess
}

// FindLog returns the first log named name.
func (c Callback) FindLog(name string) (Log, bool) {
	for _, l := range c.Data.Logs {
		if l.Name == name {
			return l, true
		}
	}
	return Log{}, false
}

// TxHash is the chain transaction hash when the receipt carries one.
func (c Callback) TxHash() string {
	if c.Data.Receipt != nil {
		return c.Data.Receipt.Hash
	}
	return ""
}

func chainParam(id int64) string {
	return strconv.FormatInt(id, 10)
}
