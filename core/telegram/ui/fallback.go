// Package ui declares the user-facing answers routers fall back on.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider answers updates that no command, callback key or active
// conversation claimed. Each method returns the handler for one kind.
type FallbackProvider interface {
	// UnknownText handles free text outside a conversation.
	UnknownText() tele.HandlerFunc
	// UnknownMedia handles photos nobody asked for.
	UnknownMedia() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	// UnknownCallback answers buttons whose key is not registered.
	UnknownCallback() tele.HandlerFunc
}
