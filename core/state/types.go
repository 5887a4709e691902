package state

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// State identifies a step inside a flow.
type State string

const (
	// StateIdle indicates there is no active conversation with the chat.
	// It is never stored; idle is the absence of a session.
	StateIdle State = "idle"
)

// Key addresses one session: a chat within a flow family.
type Key struct {
	Family string `json:"family"`
	ChatID int64  `json:"chat_id"`
}

func (k Key) String() string {
	return k.Family + ":" + strconv.FormatInt(k.ChatID, 10)
}

// Session is the persisted record of an active flow.
// Fields holds the flow's typed record in JSON form.
type Session struct {
	Key       Key             `json:"key"`
	FlowID    string          `json:"flow_id"`
	State     State           `json:"state"`
	Fields    json.RawMessage `json:"fields,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ErrNotFound is returned by a Store when no session exists for a key.
var ErrNotFound = errors.New("state: session not found")

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key Key) (Session, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, key Key) error
	// Sweep removes sessions last updated before cutoff and reports how many.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}
