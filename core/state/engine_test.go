package state

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
	Note string `json:"note"`
}

type finishCall struct {
	chat   Chat
	fields order
}

type orderFlow struct {
	mu    sync.Mutex
	calls []finishCall
	err   error
	// gate, when set, blocks Finish until closed.
	gate    chan struct{}
	entered chan struct{}
}

func (o *orderFlow) finished() []finishCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]finishCall(nil), o.calls...)
}

func (o *orderFlow) flow() Flow[order] {
	return Flow[order]{
		ID: "order",
		Steps: []Step[order]{
			{
				State:  "name",
				Prompt: func(order) Reply { return Reply{Text: "Name?"} },
				Expect: "a name of at least 3 characters",
				Rules: []Rule[order]{{
					On: OnText(),
					Apply: func(f *order, in Input) error {
						name := strings.TrimSpace(in.Text)
						if len([]rune(name)) < 3 {
							return Invalid("name", "a name of at least 3 characters")
						}
						f.Name = name
						return nil
					},
				}},
			},
			{
				State:  "qty",
				Prompt: func(f order) Reply { return Reply{Text: "How many " + f.Name + "?"} },
				Expect: "a whole number, e.g. 3",
				Rules: []Rule[order]{{
					On: OnText(),
					Apply: func(f *order, in Input) error {
						n, err := strconv.Atoi(strings.TrimSpace(in.Text))
						if err != nil || n <= 0 {
							return Invalid("qty", "")
						}
						f.Qty = n
						return nil
					},
				}},
			},
			{
				State:  "note",
				Prompt: func(order) Reply { return Reply{Text: "Note?"} },
				Expect: "some text or skip",
				Rules: []Rule[order]{{
					On:    OnText(),
					Apply: func(f *order, in Input) error { f.Note = in.Text; return nil },
				}},
				Skip: func(f *order) { f.Note = "" },
			},
			{
				State: "confirm",
				Prompt: func(order) Reply {
					return Reply{Text: "Confirm?", Buttons: []Button{{Action: "confirm", Label: "Yes"}, {Action: "no", Label: "No"}}}
				},
				Expect: "press Yes or No",
				Rules: []Rule[order]{
					{On: OnAction("confirm"), Then: Next},
					{On: OnAction("no"), Then: Cancel},
				},
			},
		},
		Finish: func(ctx context.Context, chat Chat, f order) (Reply, error) {
			if o.entered != nil {
				close(o.entered)
			}
			if o.gate != nil {
				<-o.gate
			}
			o.mu.Lock()
			o.calls = append(o.calls, finishCall{chat: chat, fields: f})
			o.mu.Unlock()
			if o.err != nil {
				return Reply{}, o.err
			}
			return Reply{Text: "Ordered " + f.Name}, nil
		},
	}
}

func newTestEngine(t *testing.T, of *orderFlow, opts Options) (*Engine, Store) {
	t.Helper()
	store := NewMemoryStore()
	opts.Family = "test"
	e := NewEngine(store, opts)
	require.NoError(t, Register(e, of.flow()))
	return e, store
}

func actions(r Reply) []string {
	out := make([]string, 0, len(r.Buttons))
	for _, b := range r.Buttons {
		out = append(out, b.Action)
	}
	return out
}

func TestEngineCompletesFlowOnce(t *testing.T) {
	of := &orderFlow{}
	e, store := newTestEngine(t, of, Options{})
	ctx := context.Background()
	chat := Chat{ID: 10, UserID: 20}

	reply, err := e.Start(ctx, chat, "order")
	require.NoError(t, err)
	assert.Equal(t, "Name?", reply.Text)
	assert.Equal(t, []string{ActionCancel}, actions(reply))

	reply, handled, err := e.Handle(ctx, chat, Text("Widget"))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "How many Widget?", reply.Text)

	reply, _, err = e.Handle(ctx, chat, Text("3"))
	require.NoError(t, err)
	assert.Equal(t, []string{ActionSkip, ActionCancel}, actions(reply))

	reply, _, err = e.Handle(ctx, chat, Text("fragile"))
	require.NoError(t, err)
	assert.Equal(t, []string{"confirm", "no", ActionCancel}, actions(reply))

	reply, handled, err = e.Handle(ctx, chat, Action("confirm"))
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "Ordered Widget", reply.Text)

	calls := of.finished()
	require.Len(t, calls, 1)
	assert.Equal(t, chat, calls[0].chat)
	assert.Equal(t, order{Name: "Widget", Qty: 3, Note: "fragile"}, calls[0].fields)

	_, err = store.Get(ctx, Key{Family: "test", ChatID: 10})
	assert.ErrorIs(t, err, ErrNotFound)

	_, handled, err = e.Handle(ctx, chat, Text("again"))
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestEngineValidationKeepsSession(t *testing.T) {
	of := &orderFlow{}
	e, store := newTestEngine(t, of, Options{})
	ctx := context.Background()
	chat := Chat{ID: 1}
	key := Key{Family: "test", ChatID: 1}

	_, err := e.Start(ctx, chat, "order")
	require.NoError(t, err)
	_, _, err = e.Handle(ctx, chat, Text("Widget"))
	require.NoError(t, err)
	before, err := store.Get(ctx, key)
	require.NoError(t, err)

	for _, in := range []Input{Text("zero"), Text("-1"), Action("confirm"), Media("file")} {
		reply, handled, err := e.Handle(ctx, chat, in)
		require.NoError(t, err)
		require.True(t, handled)
		assert.Contains(t, reply.Text, "a whole number")
		assert.Contains(t, actions(reply), ActionCancel)

		after, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, before.State, after.State)
		assert.JSONEq(t, string(before.Fields), string(after.Fields))
	}
	assert.Empty(t, of.finished())
}

func TestEngineCancelFromAnyState(t *testing.T) {
	inputs := []Input{Text("Widget"), Text("2"), Action(ActionSkip)}
	cancels := []Input{Text("/cancel"), Action(ActionCancel), Text("/cancel@penny_bot")}

	for steps := 0; steps <= len(inputs); steps++ {
		for _, cancel := range cancels {
			of := &orderFlow{}
			e, store := newTestEngine(t, of, Options{})
			ctx := context.Background()
			chat := Chat{ID: 5}

			_, err := e.Start(ctx, chat, "order")
			require.NoError(t, err)
			for _, in := range inputs[:steps] {
				_, _, err := e.Handle(ctx, chat, in)
				require.NoError(t, err)
			}

			reply, handled, err := e.Handle(ctx, chat, cancel)
			require.NoError(t, err)
			require.True(t, handled)
			assert.Equal(t, "Cancelled. Nothing was submitted.", reply.Text)
			_, err = store.Get(ctx, Key{Family: "test", ChatID: 5})
			assert.ErrorIs(t, err, ErrNotFound)

			reply, err = e.Start(ctx, chat, "order")
			require.NoError(t, err)
			assert.Equal(t, "Name?", reply.Text)
			sess, ok := e.Active(ctx, chat)
			require.True(t, ok)
			assert.Equal(t, State("name"), sess.State)
			assert.JSONEq(t, `{"name":"","qty":0,"note":""}`, string(sess.Fields))
			assert.Empty(t, of.finished())
		}
	}
}

func TestEngineRuleCancelEndsWithoutFinish(t *testing.T) {
	of := &orderFlow{}
	e, _ := newTestEngine(t, of, Options{})
	ctx := context.Background()
	chat := Chat{ID: 2}

	_, _ = e.Start(ctx, chat, "order")
	for _, in := range []Input{Text("Widget"), Text("1"), Action(ActionSkip)} {
		_, _, err := e.Handle(ctx, chat, in)
		require.NoError(t, err)
	}
	reply, handled, err := e.Handle(ctx, chat, Action("no"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply.Text, "Cancelled")
	assert.Empty(t, of.finished())
	_, ok := e.Active(ctx, chat)
	assert.False(t, ok)
}

func TestEngineSkipStoresEmptyValue(t *testing.T) {
	of := &orderFlow{}
	e, _ := newTestEngine(t, of, Options{})
	ctx := context.Background()
	chat := Chat{ID: 3}

	_, _ = e.Start(ctx, chat, "order")
	for _, in := range []Input{Text("Widget"), Text("4"), Action(ActionSkip), Action("confirm")} {
		_, _, err := e.Handle(ctx, chat, in)
		require.NoError(t, err)
	}
	calls := of.finished()
	require.Len(t, calls, 1)
	assert.Equal(t, "", calls[0].fields.Note)
	assert.Equal(t, 4, calls[0].fields.Qty)
}

func TestEngineSkipRejectedOnRequiredStep(t *testing.T) {
	of := &orderFlow{}
	e, _ := newTestEngine(t, of, Options{})
	ctx := context.Background()
	chat := Chat{ID: 4}

	_, _ = e.Start(ctx, chat, "order")
	reply, handled, err := e.Handle(ctx, chat, Action(ActionSkip))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply.Text, "at least 3 characters")
	sess, ok := e.Active(ctx, chat)
	require.True(t, ok)
	assert.Equal(t, State("name"), sess.State)
}

func TestEngineStartResetsActiveSession(t *testing.T) {
	of := &orderFlow{}
	e, _ := newTestEngine(t, of, Options{})
	ctx := context.Background()
	chat := Chat{ID: 6}

	_, _ = e.Start(ctx, chat, "order")
	_, _, _ = e.Handle(ctx, chat, Text("Widget"))

	_, err := e.Start(ctx, chat, "order")
	require.NoError(t, err)
	sess, ok := e.Active(ctx, chat)
	require.True(t, ok)
	assert.Equal(t, State("name"), sess.State)
	assert.NotContains(t, string(sess.Fields), "Widget")
}

func TestEngineFinishErrorClearsSession(t *testing.T) {
	of := &orderFlow{err: errors.New("gateway down: 502 body")}
	e, _ := newTestEngine(t, of, Options{Messages: Messages{Failed: "Could not submit."}})
	ctx := context.Background()
	chat := Chat{ID: 7}

	_, _ = e.Start(ctx, chat, "order")
	var reply Reply
	for _, in := range []Input{Text("Widget"), Text("1"), Action(ActionSkip), Action("confirm")} {
		var err error
		reply, _, err = e.Handle(ctx, chat, in)
		require.NoError(t, err)
	}
	assert.Equal(t, "Could not submit.", reply.Text)
	assert.NotContains(t, reply.Text, "502")
	_, ok := e.Active(ctx, chat)
	assert.False(t, ok)
	assert.Len(t, of.finished(), 1)
}

func TestEngineRejectsConcurrentInputForSameChat(t *testing.T) {
	of := &orderFlow{gate: make(chan struct{}), entered: make(chan struct{})}
	e, _ := newTestEngine(t, of, Options{})
	ctx := context.Background()
	chat := Chat{ID: 8}
	other := Chat{ID: 9}

	_, _ = e.Start(ctx, chat, "order")
	for _, in := range []Input{Text("Widget"), Text("1"), Action(ActionSkip)} {
		_, _, err := e.Handle(ctx, chat, in)
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := e.Handle(ctx, chat, Action("confirm"))
		done <- err
	}()
	<-of.entered

	_, _, err := e.Handle(ctx, chat, Action("confirm"))
	assert.ErrorIs(t, err, ErrBusy)
	_, err = e.Start(ctx, chat, "order")
	assert.ErrorIs(t, err, ErrBusy)
	_, _, err = e.Cancel(ctx, chat)
	assert.ErrorIs(t, err, ErrBusy)

	// A different chat is not blocked.
	reply, err := e.Start(ctx, other, "order")
	require.NoError(t, err)
	assert.Equal(t, "Name?", reply.Text)

	close(of.gate)
	require.NoError(t, <-done)
	assert.Len(t, of.finished(), 1)

	_, _, err = e.Handle(ctx, chat, Text("after"))
	assert.NoError(t, err)
}

func TestEngineExpiresIdleSessions(t *testing.T) {
	of := &orderFlow{}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	e, store := newTestEngine(t, of, Options{TTL: 10 * time.Minute, Now: clock})
	ctx := context.Background()

	_, _ = e.Start(ctx, Chat{ID: 1}, "order")
	_, _ = e.Start(ctx, Chat{ID: 2}, "order")

	now = now.Add(5 * time.Minute)
	_, handled, err := e.Handle(ctx, Chat{ID: 2}, Text("Widget"))
	require.NoError(t, err)
	require.True(t, handled)

	now = now.Add(6 * time.Minute)
	_, handled, err = e.Handle(ctx, Chat{ID: 1}, Text("Widget"))
	require.NoError(t, err)
	assert.False(t, handled, "expired session is idle on read")

	_, _ = e.Start(ctx, Chat{ID: 3}, "order")
	now = now.Add(9 * time.Minute)
	n, err := e.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	live, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, live)
}

func TestEngineCancelIdle(t *testing.T) {
	of := &orderFlow{}
	e, _ := newTestEngine(t, of, Options{})
	_, active, err := e.Cancel(context.Background(), Chat{ID: 99})
	require.NoError(t, err)
	assert.False(t, active)
}

func TestEngineUnknownFlowAndCorruptSession(t *testing.T) {
	of := &orderFlow{}
	e, store := newTestEngine(t, of, Options{})
	ctx := context.Background()

	_, err := e.Start(ctx, Chat{ID: 1}, "missing")
	assert.ErrorIs(t, err, ErrUnknownFlow)

	require.NoError(t, store.Put(ctx, Session{
		Key:       Key{Family: "test", ChatID: 2},
		FlowID:    "order",
		State:     "vanished",
		Fields:    json.RawMessage(`{}`),
		UpdatedAt: time.Now(),
	}))
	reply, handled, err := e.Handle(ctx, Chat{ID: 2}, Text("hi"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, "Something went wrong, please try again later.", reply.Text)
	_, ok := e.Active(ctx, Chat{ID: 2})
	assert.False(t, ok)
}

func TestRegisterValidatesFlows(t *testing.T) {
	e := NewEngine(NewMemoryStore(), Options{})
	of := &orderFlow{}

	require.NoError(t, Register(e, of.flow()))
	assert.Error(t, Register(e, of.flow()), "duplicate id")

	bad := of.flow()
	bad.ID = "bad"
	bad.Finish = nil
	assert.Error(t, Register(e, bad))

	dup := of.flow()
	dup.ID = "dup"
	dup.Steps = append(dup.Steps, dup.Steps[0])
	assert.Error(t, Register(e, dup))

	assert.Equal(t, []string{"order"}, e.Flows())
}

func TestEventMatch(t *testing.T) {
	assert.True(t, OnText().Match(Text("x")))
	assert.False(t, OnText().Match(Media("x")))
	assert.True(t, OnMedia().Match(Media("file")))
	assert.True(t, OnAction("yes").Match(Action("yes")))
	assert.False(t, OnAction("yes").Match(Action("no")))
	assert.True(t, Event{Kind: InputAction}.Match(Action("any")))
	assert.True(t, Text(" /CANCEL ").IsCancel())
	assert.False(t, Text("cancel").IsCancel())
}
