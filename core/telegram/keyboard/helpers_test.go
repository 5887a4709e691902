package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridPlacesControlsLast(t *testing.T) {
	choices := []InlineBtn{
		{Text: "Food", Unique: "flow", Data: "pick:Food"},
		{Text: "Rent", Unique: "flow", Data: "pick:Rent"},
		{Text: "Fun", Unique: "flow", Data: "pick:Fun"},
	}
	markup := Grid(choices, 2, InlineBtn{Text: "Skip", Unique: "flow", Data: "skip"}, InlineBtn{Text: "Cancel", Unique: "flow", Data: "cancel"})
	require.NotNil(t, markup)
	rows := markup.InlineKeyboard
	require.Len(t, rows, 3)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[1], 1)
	assert.Equal(t, "Fun", rows[1][0].Text)
	require.Len(t, rows[2], 2)
	assert.Equal(t, "Skip", rows[2][0].Text)
	assert.Equal(t, "flow", rows[2][1].Unique)
}

func TestGridEmpty(t *testing.T) {
	assert.Nil(t, Grid(nil, 3))
	markup := Grid(nil, 3, InlineBtn{Text: "Cancel", Unique: "flow", Data: "cancel"})
	require.NotNil(t, markup)
	assert.Len(t, markup.InlineKeyboard, 1)
}

func TestColumnAndLinks(t *testing.T) {
	markup := Column(
		InlineBtn{Text: "a", Unique: "x"},
		InlineBtn{Text: "Explorer", URL: "https://sepolia.etherscan.io/address/0xabc"},
	)
	require.Len(t, markup.InlineKeyboard, 2)
	assert.Equal(t, "x", markup.InlineKeyboard[0][0].Unique)
	link := markup.InlineKeyboard[1][0]
	assert.Equal(t, "https://sepolia.etherscan.io/address/0xabc", link.URL)
	assert.Empty(t, link.Unique)
}

func TestRowsSkipsEmpty(t *testing.T) {
	markup := Rows(nil, []InlineBtn{{Text: "a", Unique: "x"}}, []InlineBtn{})
	assert.Len(t, markup.InlineKeyboard, 1)
}
