package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/penny/core/telegram/commands"
)

func nop(tele.Context) error { return nil }

func TestRegistryCommands(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("/start", commands.Command{Handler: nop, Description: "Main menu", Aliases: []string{"menu"}})
	r.RegisterCommand("/endpoints", commands.Command{Handler: nop, Description: "List endpoints", AdminOnly: true})
	r.RegisterCommand("hello", commands.Command{Handler: nop, Description: "no slash"})
	r.RegisterCommand("/start", commands.Command{Handler: nop, Description: "duplicate"})

	require.Len(t, r.Commands(), 2)
	assert.Equal(t, []tele.Command{{Text: "start", Description: "Main menu"}}, r.ListCommands(true))
	assert.Len(t, r.ListCommands(false), 2)

	cases := map[string]string{
		"/start":           "/start",
		"/start@penny_bot": "/start",
		"/start now":       "/start",
		"start":            "/start",
		"menu":             "/start",
		"  /endpoints  ":   "/endpoints",
	}
	for in, want := range cases {
		key, _, ok := r.LookupCommand(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, key, in)
	}
	for _, in := range []string{"", "/", "start the bot", "/unknown", "hello"} {
		_, _, ok := r.LookupCommand(in)
		assert.False(t, ok, in)
	}
}

func TestRegistryCallbacks(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterCallback("flow", nop))
	assert.Error(t, r.RegisterCallback("flow", nop))
	assert.Error(t, r.RegisterCallback("", nop))

	_, ok := r.GetCallback("flow")
	assert.True(t, ok)
	_, ok = r.GetCallback("menu")
	assert.False(t, ok)
	assert.Equal(t, []string{"flow"}, r.ListCallbacks())
	assert.NotNil(t, r.CallbackNotFound())
}

func TestCommandEndpoints(t *testing.T) {
	cmd := commands.Command{Handler: nop, Description: "Escrow wallet", Aliases: []string{"escrowinfo", "/checkbalance", ""}}
	assert.Equal(t, []string{"/wallet", "/escrowinfo", "/checkbalance"}, cmd.Endpoints("/wallet"))
	assert.Equal(t, []string{"/time"}, commands.Command{}.Endpoints("/time"))
}

func TestRegistryAliasCollision(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("/wallet", commands.Command{Handler: nop, Description: "Wallet", Aliases: []string{"balance"}})
	r.RegisterCommand("/balance", commands.Command{Handler: nop, Description: "taken by an alias"})
	r.RegisterCommand("/report", commands.Command{Handler: nop, Description: "Report", Aliases: []string{"wallet", "summary"}})

	assert.Len(t, r.Commands(), 2)
	key, _, ok := r.LookupCommand("/wallet")
	require.True(t, ok)
	assert.Equal(t, "/wallet", key)
	key, _, ok = r.LookupCommand("summary")
	require.True(t, ok)
	assert.Equal(t, "/report", key)
}

type recordedMenus struct{ calls [][]interface{} }

func (m *recordedMenus) SetCommands(opts ...interface{}) error {
	m.calls = append(m.calls, opts)
	return nil
}

func TestInitBotCommandsScopesAdminMenu(t *testing.T) {
	r := NewRegistry()
	r.RegisterCommand("/start", commands.Command{Handler: nop, Description: "Main menu"})
	r.RegisterCommand("/endpoints", commands.Command{Handler: nop, Description: "Endpoints", AdminOnly: true})
	r.RegisterCommand("/debug", commands.Command{Handler: nop, Description: "Debug", Hidden: true})

	menus := &recordedMenus{}
	InitBotCommands(menus, r, 0)
	require.Len(t, menus.calls, 1)
	assert.Equal(t, []tele.Command{{Text: "start", Description: "Main menu"}}, menus.calls[0][0])

	menus = &recordedMenus{}
	InitBotCommands(menus, r, 99)
	require.Len(t, menus.calls, 2)
	assert.Len(t, menus.calls[1][0], 2)
	assert.Equal(t, tele.CommandScope{Type: tele.CommandScopeChat, ChatID: 99}, menus.calls[1][1])
}
