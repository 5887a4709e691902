// Package format builds Telegram HTML message fragments. Every helper
// escapes its text arguments; only the tags it emits are trusted.
package format

import (
	"fmt"
	"html"
)

// Escape makes s safe inside an HTML parse-mode message.
func Escape(s string) string { return html.EscapeString(s) }

// Bold wraps escaped s in <b>.
func Bold(s string) string { return "<b>" + html.EscapeString(s) + "</b>" }

// Code wraps escaped s in <code>.
func Code(s string) string { return "<code>" + html.EscapeString(s) + "</code>" }

// Link renders an anchor. href is escaped as an attribute value.
func Link(href, text string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), html.EscapeString(text))
}

// Field renders "<b>label:</b> value" with value escaped.
func Field(label, value string) string {
	return "<b>" + html.EscapeString(label) + ":</b> " + html.EscapeString(value)
}
