// Package memo defines the correlation record attached to every transaction
// submitted to the gateway. The gateway echoes it back unmodified in the
// execution callback, so it must carry everything the notification needs.
package memo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// TxType says which flow submitted a transaction. Values are part of the wire
// format and must stay stable.
type TxType int

const (
	TokenCreation TxType = iota
	AdminAdded
	TokensMinted
	TokenTransfer
	NativeTransfer
)

var txTypeNames = map[TxType]string{
	TokenCreation:  "token-creation",
	AdminAdded:     "admin-added",
	TokensMinted:   "tokens-minted",
	TokenTransfer:  "token-transfer",
	NativeTransfer: "native-currency-transfer",
}

func (t TxType) String() string {
	if s, ok := txTypeNames[t]; ok {
		return s
	}
	return "unknown(" + strconv.Itoa(int(t)) + ")"
}

// Known reports whether t is one of the declared kinds.
func (t TxType) Known() bool {
	_, ok := txTypeNames[t]
	return ok
}

// TokenPayload describes a token being deployed.
type TokenPayload struct {
	Name        string `json:"name"`
	Ticker      string `json:"ticker"`
	Description string `json:"description,omitempty"`
	// ImageID is a chat-platform file reference; empty when skipped.
	ImageID string `json:"image_id,omitempty"`
}

// TransferPayload describes a token or native-currency transfer.
type TransferPayload struct {
	TokenAddress string `json:"token_address,omitempty"`
	Recipient    string `json:"recipient,omitempty"`
	// Amount is the human-readable decimal the user entered.
	Amount string `json:"amount,omitempty"`
}

// Memo is built once at submission time and never mutated afterwards.
type Memo struct {
	TxType   TxType           `json:"tx_type"`
	UserID   int64            `json:"associated_user_id"`
	ChatID   int64            `json:"chat_id,omitempty"`
	Note     string           `json:"note_to_user,omitempty"`
	Token    *TokenPayload    `json:"token,omitempty"`
	Transfer *TransferPayload `json:"transfer,omitempty"`
}

// Target is the chat the result must be delivered to. Private-chat flows
// may leave ChatID unset, in which case the user id doubles as the chat id.
func (m Memo) Target() int64 {
	if m.ChatID != 0 {
		return m.ChatID
	}
	return m.UserID
}

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("memo: decode failed")

// DecodeError explains why a memo string could not be turned into a Memo.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memo: %s: %v", e.Reason, e.Err)
	}
	return "memo: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets callers test errors.Is(err, ErrDecode).
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Encode serialises m as compact JSON. HTML characters are left unescaped so
// the string the gateway stores reads the same as what the user typed.
func Encode(m Memo) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(wire(m)); err != nil {
		return "", fmt.Errorf("memo: encode: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// Decode parses a memo produced by Encode. Empty input, malformed JSON,
// unknown fields and a memo with no delivery target all yield *DecodeError.
// Unknown tx types decode successfully; routing them is the caller's job.
func Decode(s string) (Memo, error) {
	if len(bytes.TrimSpace([]byte(s))) == 0 {
		return Memo{}, &DecodeError{Reason: "empty memo"}
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()
	var w wireMemo
	if err := dec.Decode(&w); err != nil {
		return Memo{}, &DecodeError{Reason: "malformed memo", Err: err}
	}
	if dec.More() {
		return Memo{}, &DecodeError{Reason: "trailing data after memo"}
	}
	if w.TxType == nil {
		return Memo{}, &DecodeError{Reason: "missing tx_type"}
	}
	m := Memo{
		TxType:   TxType(*w.TxType),
		UserID:   w.UserID,
		ChatID:   w.ChatID,
		Note:     w.Note,
		Token:    w.Token,
		Transfer: w.Transfer,
	}
	if m.Target() == 0 {
		return Memo{}, &DecodeError{Reason: "no delivery target"}
	}
	return m, nil
}

// wireMemo distinguishes an absent tx_type from token-creation (0).
type wireMemo struct {
	TxType   *int             `json:"tx_type"`
	UserID   int64            `json:"associated_user_id"`
	ChatID   int64            `json:"chat_id,omitempty"`
	Note     string           `json:"note_to_user,omitempty"`
	Token    *TokenPayload    `json:"token,omitempty"`
	Transfer *TransferPayload `json:"transfer,omitempty"`
}

func wire(m Memo) wireMemo {
	t := int(m.TxType)
	return wireMemo{
		TxType:   &t,
		UserID:   m.UserID,
		ChatID:   m.ChatID,
		Note:     m.Note,
		Token:    m.Token,
		Transfer: m.Transfer,
	}
}
