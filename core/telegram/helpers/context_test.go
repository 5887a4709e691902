package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/penny/core/logger"
)

func testContext(t *testing.T) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Token: "test", Offline: true})
	require.NoError(t, err)
	return b.NewContext(tele.Update{ID: 7, Message: &tele.Message{
		Text:   "hi",
		Chat:   &tele.Chat{ID: 100},
		Sender: &tele.User{ID: 5},
	}})
}

func TestBuildContextIsCached(t *testing.T) {
	c := testContext(t)
	_, ok := ContextFrom(c)
	assert.False(t, ok)

	ctx := BuildContext(c)
	assert.Equal(t, 7, logger.UpdateIDFrom(ctx))
	assert.Equal(t, int64(100), logger.ChatIDFrom(ctx))
	assert.Equal(t, int64(5), logger.UserIDFrom(ctx))
	assert.Equal(t, logger.BuildRID(7, 100, 5), logger.RIDFrom(ctx))

	again, ok := ContextFrom(c)
	require.True(t, ok)
	assert.Equal(t, ctx, again)
}

func TestBuildContextKeepsPresetRID(t *testing.T) {
	c := testContext(t)
	c.Set("rid", "rid-1")
	assert.Equal(t, "rid-1", logger.RIDFrom(BuildContext(c)))
}

func TestHandlerAndFlowTags(t *testing.T) {
	c := testContext(t)
	WithHandler(c, "command.start")
	WithFlow(c, "expense")
	WithFlow(c, "")

	ctx := BuildContext(c)
	assert.Equal(t, "command.start", logger.HandlerFrom(ctx))
	assert.Equal(t, "expense", logger.FlowFrom(ctx))
}
