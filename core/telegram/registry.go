package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

// Registry collects what the bot answers to: slash commands with their
// aliases, callback keys and the fallbacks for anything else. Commands are
// registered during wiring only; callbacks may be added later.
type Registry struct {
	commands map[string]commands.Command
	// aliases maps every alias endpoint to its command key.
	aliases map[string]string

	mu               sync.RWMutex
	callbacks        map[string]tele.HandlerFunc
	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			_ = c.Respond(&tele.CallbackResponse{Text: "This button no longer works."})
			return nil
		},
	}
}

func skipCommand(name, reason string) {
	logger.Warn(context.Background(), logger.ComponentTGWire, "register.command",
		slog.String("status", "skip"),
		slog.String("name", name),
		slog.String("cause", reason),
	)
}

// RegisterCommand adds cmd under name, which must start with a slash. A
// name or alias already taken by another command is skipped.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	switch {
	case r == nil:
		return
	case name == "" || cmd.Handler == nil || cmd.Description == "":
		skipCommand(name, "invalid")
		return
	case name[0] != '/':
		skipCommand(name, "no_slash_prefix")
		return
	}
	if _, _, taken := r.LookupCommand(name); taken {
		skipCommand(name, "duplicate")
		return
	}
	r.commands[name] = cmd
	for _, alias := range cmd.Endpoints(name)[1:] {
		if _, _, taken := r.LookupCommand(alias); taken {
			skipCommand(alias, "duplicate_alias")
			continue
		}
		r.aliases[alias] = name
	}
}

// ListCommands returns the menu sorted by name, without the leading slash
// as setMyCommands expects. visibleOnly drops hidden and admin commands.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	var list []tele.Command
	for name, cmd := range r.commands {
		if cmd.Hidden || (visibleOnly && cmd.AdminOnly) {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand resolves a command or alias to its registry key. Arguments
// and a @botname suffix after a slash command are ignored; a bare word
// matches only on its own, so "time" finds /time but "what time" does not.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "/") {
		name, _, _ = strings.Cut(name, " ")
		name, _, _ = strings.Cut(name, "@")
	} else if strings.ContainsAny(name, " \t\n") {
		return "", commands.Command{}, false
	}
	name = "/" + strings.TrimPrefix(name, "/")
	if name == "/" {
		return "", commands.Command{}, false
	}
	if key, ok := r.aliases[name]; ok {
		name = key
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Commands returns the registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	return r.commands
}

// RegisterCallback binds handler to a callback unique key.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if r == nil || key == "" || handler == nil {
		return errors.New("telegram: invalid callback registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return fmt.Errorf("telegram: callback %q already registered", key)
	}
	r.callbacks[key] = handler
	return nil
}

func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetCallbackNotFound replaces the answer to buttons nobody handles.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.callbackNotFound = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that is neither a command nor
// part of a conversation.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.textFallback = h
	r.mu.Unlock()
}

func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// commandSetter is the part of *tele.Bot InitBotCommands uses.
type commandSetter interface {
	SetCommands(opts ...interface{}) error
}

// InitBotCommands publishes the command menu. Everyone sees the public
// commands; the admin's private chat also lists the admin-only ones.
func InitBotCommands(bot commandSetter, reg *Registry, adminID int64) {
	publish := func(scope string, opts ...interface{}) {
		if err := bot.SetCommands(opts...); err != nil {
			logger.Error(context.Background(), logger.ComponentTGWire, "register.commands",
				slog.String("status", "fail"),
				slog.String("scope", scope),
				slog.Any("err", err),
			)
		}
	}
	if public := reg.ListCommands(true); len(public) > 0 {
		publish("default", public)
	}
	if adminID == 0 {
		return
	}
	all := reg.ListCommands(false)
	if len(all) == len(reg.ListCommands(true)) {
		return
	}
	publish("admin", all, tele.CommandScope{Type: tele.CommandScopeChat, ChatID: adminID})
}
