package state

import "strings"

// InputKind classifies a user event independently of the chat transport.
type InputKind int

const (
	// InputText is free text typed by the user.
	InputText InputKind = iota
	// InputMedia is an uploaded media reference (a photo file id).
	InputMedia
	// InputAction is a button press carrying an action name.
	InputAction
)

func (k InputKind) String() string {
	switch k {
	case InputText:
		return "text"
	case InputMedia:
		return "media"
	case InputAction:
		return "action"
	}
	return "unknown"
}

// Reserved action names handled by the engine itself.
const (
	ActionCancel = "cancel"
	ActionSkip   = "skip"
)

// CancelCommand is the text command that cancels any active flow.
const CancelCommand = "/cancel"

// Input is one normalised user event.
type Input struct {
	Kind   InputKind
	Text   string
	Media  string
	Action string
}

// Text builds a text input.
func Text(s string) Input { return Input{Kind: InputText, Text: s} }

// Media builds a media input from a transport file reference.
func Media(ref string) Input { return Input{Kind: InputMedia, Media: ref} }

// Action builds a button-press input.
func Action(name string) Input { return Input{Kind: InputAction, Action: name} }

// IsCancel reports whether the input is the universal cancellation.
func (in Input) IsCancel() bool {
	switch in.Kind {
	case InputAction:
		return in.Action == ActionCancel
	case InputText:
		cmd := strings.TrimSpace(in.Text)
		if i := strings.IndexByte(cmd, '@'); i > 0 {
			cmd = cmd[:i]
		}
		return strings.EqualFold(cmd, CancelCommand)
	}
	return false
}

// Event is a pattern over inputs used in a step's rule table.
// An empty Action on an action event matches any action.
type Event struct {
	Kind   InputKind
	Action string
}

// OnText matches any text input.
func OnText() Event { return Event{Kind: InputText} }

// OnMedia matches any media input.
func OnMedia() Event { return Event{Kind: InputMedia} }

// OnAction matches a button press with the given action name.
func OnAction(name string) Event { return Event{Kind: InputAction, Action: name} }

// Match reports whether in satisfies the pattern.
func (e Event) Match(in Input) bool {
	if e.Kind != in.Kind {
		return false
	}
	if e.Kind == InputAction && e.Action != "" {
		return e.Action == in.Action
	}
	return true
}

// Chat identifies who an input came from.
type Chat struct {
	ID     int64
	UserID int64
}

// Button is a transport-neutral choice offered with a reply.
type Button struct {
	Action string
	Label  string
}

// Reply is what the engine asks the transport to send back.
type Reply struct {
	Text    string
	Buttons []Button
}

// HasAction reports whether the reply already offers the given action.
func (r Reply) HasAction(action string) bool {
	for _, b := range r.Buttons {
		if b.Action == action {
			return true
		}
	}
	return false
}
