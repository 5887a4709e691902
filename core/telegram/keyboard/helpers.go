// Package keyboard lays out inline keyboards.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is one inline button. A button with URL opens the link;
// otherwise pressing it sends Unique and Data back as a callback.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

func (b InlineBtn) inline(m *tele.ReplyMarkup) tele.InlineButton {
	if b.URL != "" {
		return *m.URL(b.Text, b.URL).Inline()
	}
	return *m.Data(b.Text, b.Unique, b.Data).Inline()
}

// Rows builds a keyboard with the given rows. Empty rows are dropped.
func Rows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, len(row))
		for i, b := range row {
			line[i] = b.inline(m)
		}
		m.InlineKeyboard = append(m.InlineKeyboard, line)
	}
	return m
}

// Column puts every button on its own row.
func Column(buttons ...InlineBtn) *tele.ReplyMarkup {
	return Grid(buttons, 1)
}

// Grid lays out choices n per row and puts the controls on a final row of
// their own. It returns nil when there is nothing to show.
func Grid(choices []InlineBtn, n int, controls ...InlineBtn) *tele.ReplyMarkup {
	if len(choices) == 0 && len(controls) == 0 {
		return nil
	}
	n = max(n, 1)
	var rows [][]InlineBtn
	for len(choices) > 0 {
		k := min(n, len(choices))
		rows = append(rows, choices[:k])
		choices = choices[k:]
	}
	return Rows(append(rows, controls)...)
}
