package middleware

import (
	"sync/atomic"

	"github.com/m3rciful/penny/core/metrics"

	tele "gopkg.in/telebot.v4"
)

const tallyKey = "send_tally"

// sendTally counts what a handler sent back. Queued sends finish on the
// dispatcher, so they may land after the handler summary is logged.
type sendTally struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

// countingContext wraps tele.Context and tallies successful outgoing calls.
type countingContext struct {
	tele.Context
	tally *sendTally
}

func (c countingContext) count(err error, opts []interface{}) error {
	if err != nil {
		return err
	}
	c.tally.messages.Add(1)
	if withKeyboard(opts) {
		c.tally.keyboard.Store(true)
	}
	return nil
}

func (c countingContext) Send(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.Edit(what, opts...), opts)
}

func (c countingContext) EditOrSend(what interface{}, opts ...interface{}) error {
	return c.count(c.Context.EditOrSend(what, opts...), opts)
}

func withKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// UpdateKind names the update for metrics and rate limit exclusions.
func UpdateKind(upd tele.Update) string {
	switch m := upd.Message; {
	case upd.Callback != nil:
		return "callback"
	case m != nil && m.Photo != nil:
		return "photo"
	case m != nil && m.Document != nil:
		return "document"
	case m != nil:
		return "message"
	case upd.EditedMessage != nil:
		return "edited"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}

// MessageMetricsMiddleware counts the update by kind and tallies the
// replies its handler sends.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := c.Get(tallyKey).(*sendTally); ok {
			// instrumented by an outer pass
			return next(c)
		}
		metrics.Updates.WithLabelValues(UpdateKind(c.Update())).Inc()
		t := &sendTally{}
		c.Set(tallyKey, t)
		return next(countingContext{Context: c, tally: t})
	}
}

// GetCounters reports how many messages the handler sent and whether any
// carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	t, ok := c.Get(tallyKey).(*sendTally)
	if !ok {
		return 0, false
	}
	return int(t.messages.Load()), t.keyboard.Load()
}
