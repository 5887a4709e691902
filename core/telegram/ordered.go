package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/m3rciful/penny/core/logger"

	tele "gopkg.in/telebot.v4"
)

const defaultMaxPending = 32

// ChatOrderPoller wraps a poller so the updates of one chat are handled one
// at a time in arrival order while different chats run in parallel. The bot
// must be Synchronous so ProcessUpdate returns only once the handler has.
type ChatOrderPoller struct {
	Poller tele.Poller
	// MaxPending caps the updates waiting behind a busy chat; the excess is
	// dropped.
	MaxPending int

	process func(tele.Update)

	mu    sync.Mutex
	chats map[int64][]tele.Update
	wg    sync.WaitGroup
}

// NewChatOrderPoller wraps inner.
func NewChatOrderPoller(inner tele.Poller) *ChatOrderPoller {
	return &ChatOrderPoller{Poller: inner, MaxPending: defaultMaxPending}
}

// Poll runs the inner poller and fans its updates out to per-chat workers.
// It returns after the inner poller has stopped and running handlers are done.
func (p *ChatOrderPoller) Poll(b *tele.Bot, _ chan tele.Update, stop chan struct{}) {
	process := p.process
	if process == nil {
		process = b.ProcessUpdate
	}
	in := make(chan tele.Update, 64)
	done := make(chan struct{})
	go func() {
		p.Poller.Poll(b, in, stop)
		close(done)
	}()
	for {
		select {
		case upd := <-in:
			p.dispatch(upd, process)
		case <-done:
			p.wg.Wait()
			return
		}
	}
}

func (p *ChatOrderPoller) dispatch(upd tele.Update, process func(tele.Update)) {
	chat := updateChat(upd)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chats == nil {
		p.chats = make(map[int64][]tele.Update)
	}
	if queue, busy := p.chats[chat]; busy {
		if p.MaxPending > 0 && len(queue) >= p.MaxPending {
			logger.Warn(context.Background(), logger.ComponentTG, "update.dropped",
				slog.String("status", "skip"),
				slog.String("reason", "chat_backlog"),
				slog.Int64("chat_id", chat),
				slog.Int("update_id", upd.ID),
			)
			return
		}
		p.chats[chat] = append(queue, upd)
		return
	}
	// an empty queue marks the chat as busy
	p.chats[chat] = nil
	p.wg.Add(1)
	go p.drain(chat, upd, process)
}

func (p *ChatOrderPoller) drain(chat int64, upd tele.Update, process func(tele.Update)) {
	defer p.wg.Done()
	for {
		runUpdate(upd, process)
		p.mu.Lock()
		queue := p.chats[chat]
		if len(queue) == 0 {
			delete(p.chats, chat)
			p.mu.Unlock()
			return
		}
		upd = queue[0]
		p.chats[chat] = queue[1:]
		p.mu.Unlock()
	}
}

// runUpdate keeps a panic outside the middleware chain from wedging the chat.
func runUpdate(upd tele.Update, process func(tele.Update)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), logger.ComponentTG, "update.panic",
				slog.String("status", "fail"),
				slog.Int("update_id", upd.ID),
				slog.String("err", fmt.Sprint(r)),
			)
		}
	}()
	process(upd)
}

// updateChat is the chat an update belongs to, or 0 when it has none.
func updateChat(u tele.Update) int64 {
	for _, m := range []*tele.Message{u.Message, u.EditedMessage, u.ChannelPost, u.EditedChannelPost} {
		if m != nil && m.Chat != nil {
			return m.Chat.ID
		}
	}
	switch {
	case u.Callback != nil && u.Callback.Message != nil && u.Callback.Message.Chat != nil:
		return u.Callback.Message.Chat.ID
	case u.Callback != nil && u.Callback.Sender != nil:
		return u.Callback.Sender.ID
	case u.Query != nil && u.Query.Sender != nil:
		return u.Query.Sender.ID
	}
	return 0
}
