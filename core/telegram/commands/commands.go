// Package commands describes slash commands kept in the registry.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is one slash command. The registry key carries the slash; Aliases
// do not and are routed to the same handler without showing in the menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are hidden from the menu and guarded by the admin
	// middleware.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Endpoints returns the command name followed by its aliases, each with a
// leading slash.
func (c Command) Endpoints(name string) []string {
	out := make([]string, 0, 1+len(c.Aliases))
	out = append(out, name)
	for _, a := range c.Aliases {
		if a == "" {
			continue
		}
		if a[0] != '/' {
			a = "/" + a
		}
		out = append(out, a)
	}
	return out
}
