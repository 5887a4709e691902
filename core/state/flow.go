package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Transition says where a matched rule leads.
type Transition int

const (
	// Next moves to the following step, or runs the terminal action after the last one.
	Next Transition = iota
	// Cancel ends the flow without a terminal action.
	Cancel
)

// Rule pairs an event pattern with the validator that stores its value.
// Apply may be nil for rules that only transition (a confirm button).
type Rule[T any] struct {
	On    Event
	Apply func(fields *T, in Input) error
	Then  Transition
}

// Step is one row of a flow table.
type Step[T any] struct {
	State State
	// Prompt renders the question for this step from the fields collected so far.
	Prompt func(fields T) Reply
	// Expect names the accepted format; it is shown when no rule matches.
	Expect string
	Rules  []Rule[T]
	// Skip, when set, makes the step optional: a skip action stores the
	// defined empty value and advances.
	Skip func(fields *T)
}

// Flow is a named, ordered sequence of steps ending in one terminal action.
type Flow[T any] struct {
	ID    string
	Steps []Step[T]
	// Finish runs once with the complete record. Its reply is the
	// acknowledgment shown to the user.
	Finish func(ctx context.Context, chat Chat, fields T) (Reply, error)
}

// outcome is what a runner decided for one input.
type outcome int

const (
	outcomeStay outcome = iota
	outcomeAdvance
	outcomeCancel
	outcomeFinish
)

type stepResult struct {
	outcome outcome
	state   State
	fields  json.RawMessage
	reply   Reply
	// err carries a rejected validation or the terminal action failure.
	err error
}

// runner erases the field type so flows of different records share an engine.
type runner interface {
	id() string
	first() (State, json.RawMessage, Reply, error)
	advance(ctx context.Context, chat Chat, s Session, in Input) (stepResult, error)
}

func (f *Flow[T]) validate() error {
	if f.ID == "" {
		return errors.New("state: flow id is required")
	}
	if len(f.Steps) == 0 {
		return fmt.Errorf("state: flow %s has no steps", f.ID)
	}
	if f.Finish == nil {
		return fmt.Errorf("state: flow %s has no terminal action", f.ID)
	}
	seen := make(map[State]struct{}, len(f.Steps))
	for _, st := range f.Steps {
		if st.State == "" || st.State == StateIdle {
			return fmt.Errorf("state: flow %s declares an invalid state %q", f.ID, st.State)
		}
		if _, dup := seen[st.State]; dup {
			return fmt.Errorf("state: flow %s declares state %s twice", f.ID, st.State)
		}
		if st.Prompt == nil {
			return fmt.Errorf("state: flow %s state %s has no prompt", f.ID, st.State)
		}
		seen[st.State] = struct{}{}
	}
	return nil
}

func (f *Flow[T]) id() string { return f.ID }

func (f *Flow[T]) first() (State, json.RawMessage, Reply, error) {
	var zero T
	raw, err := json.Marshal(zero)
	if err != nil {
		return "", nil, Reply{}, err
	}
	return f.Steps[0].State, raw, f.prompt(0, zero), nil
}

// prompt decorates a step's question with its skip and cancel buttons.
func (f *Flow[T]) prompt(idx int, fields T) Reply {
	st := f.Steps[idx]
	r := st.Prompt(fields)
	r.Buttons = append([]Button(nil), r.Buttons...)
	if st.Skip != nil && !r.HasAction(ActionSkip) {
		r.Buttons = append(r.Buttons, Button{Action: ActionSkip, Label: "Skip"})
	}
	if !r.HasAction(ActionCancel) {
		r.Buttons = append(r.Buttons, Button{Action: ActionCancel, Label: "Cancel"})
	}
	return r
}

func (f *Flow[T]) indexOf(st State) int {
	for i, s := range f.Steps {
		if s.State == st {
			return i
		}
	}
	return -1
}

func (f *Flow[T]) advance(ctx context.Context, chat Chat, s Session, in Input) (stepResult, error) {
	idx := f.indexOf(s.State)
	if idx < 0 {
		return stepResult{}, fmt.Errorf("%w: flow %s has no state %s", ErrCorruptSession, f.ID, s.State)
	}

	var fields T
	if len(s.Fields) > 0 {
		if err := json.Unmarshal(s.Fields, &fields); err != nil {
			return stepResult{}, fmt.Errorf("%w: %v", ErrCorruptSession, err)
		}
	}
	st := f.Steps[idx]

	// The candidate record is only kept when validation succeeds.
	work := fields
	then := Next
	switch {
	case st.Skip != nil && in.Kind == InputAction && in.Action == ActionSkip:
		st.Skip(&work)
	default:
		rule, ok := matchRule(st.Rules, in)
		if !ok {
			verr := Invalid(string(st.State), st.Expect)
			return stepResult{outcome: outcomeStay, state: st.State, reply: f.reprompt(idx, fields, verr), err: verr}, nil
		}
		if rule.Apply != nil {
			if err := rule.Apply(&work, in); err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					return stepResult{}, err
				}
				if verr.Expected == "" {
					verr.Expected = st.Expect
				}
				return stepResult{outcome: outcomeStay, state: st.State, reply: f.reprompt(idx, fields, verr), err: verr}, nil
			}
		}
		then = rule.Then
	}

	if then == Cancel {
		return stepResult{outcome: outcomeCancel}, nil
	}

	if idx+1 < len(f.Steps) {
		raw, err := json.Marshal(work)
		if err != nil {
			return stepResult{}, err
		}
		next := f.Steps[idx+1].State
		return stepResult{outcome: outcomeAdvance, state: next, fields: raw, reply: f.prompt(idx+1, work)}, nil
	}

	reply, err := f.Finish(ctx, chat, work)
	return stepResult{outcome: outcomeFinish, reply: reply, err: err}, nil
}

// reprompt repeats the step's buttons under a message naming the expected format.
func (f *Flow[T]) reprompt(idx int, fields T, verr *ValidationError) Reply {
	r := f.prompt(idx, fields)
	r.Text = "⚠️ " + verr.Expected
	return r
}

func matchRule[T any](rules []Rule[T], in Input) (Rule[T], bool) {
	for _, r := range rules {
		if r.On.Match(in) {
			return r, true
		}
	}
	return Rule[T]{}, false
}
