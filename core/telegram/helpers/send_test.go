package helpers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/penny/core/telegram/sender"
)

type botAPI struct {
	mu      sync.Mutex
	methods []string
	params  []map[string]any
}

func (a *botAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&p)
	a.mu.Lock()
	a.methods = append(a.methods, path.Base(r.URL.Path))
	a.params = append(a.params, p)
	a.mu.Unlock()
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":3,"date":0,"chat":{"id":100,"type":"private"}}}`)
}

func (a *botAPI) calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.methods...)
}

func apiBot(t *testing.T) (*tele.Bot, *botAPI) {
	t.Helper()
	api := &botAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	b, err := tele.NewBot(tele.Settings{Token: "test", URL: srv.URL, Offline: true})
	require.NoError(t, err)
	return b, api
}

func chatMessage(b *tele.Bot) tele.Context {
	return b.NewContext(tele.Update{ID: 1, Message: &tele.Message{
		ID:     9,
		Text:   "hi",
		Chat:   &tele.Chat{ID: 100, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: 5},
	}})
}

func TestSendHTMLInline(t *testing.T) {
	b, api := apiBot(t)
	require.NoError(t, SendHTML(chatMessage(b), "<b>hi</b>"))

	require.Equal(t, []string{"sendMessage"}, api.calls())
	assert.Equal(t, "HTML", api.params[0]["parse_mode"])
	assert.Equal(t, "<b>hi</b>", api.params[0]["text"])
}

func TestSendThroughDispatcher(t *testing.T) {
	b, api := apiBot(t)
	d := sender.NewDispatcher(sender.Options{Workers: 2})
	SetDispatcher(d)
	t.Cleanup(func() { SetDispatcher(nil) })

	c := chatMessage(b)
	for i := 0; i < 3; i++ {
		require.NoError(t, SendText(c, "line"))
	}
	d.Close()
	assert.Len(t, api.calls(), 3)

	// a closed queue falls back to sending inline
	require.NoError(t, SendText(c, "late"))
	assert.Len(t, api.calls(), 4)
}

func TestClearKeyboard(t *testing.T) {
	b, api := apiBot(t)

	ClearKeyboard(chatMessage(b))
	assert.Empty(t, api.calls(), "plain messages have no keyboard to clear")

	c := b.NewContext(tele.Update{ID: 2, Callback: &tele.Callback{
		ID:      "cb",
		Sender:  &tele.User{ID: 5},
		Message: &tele.Message{ID: 9, Chat: &tele.Chat{ID: 100, Type: tele.ChatPrivate}},
	}})
	ClearKeyboard(c)
	assert.Equal(t, []string{"editMessageReplyMarkup"}, api.calls())
}
