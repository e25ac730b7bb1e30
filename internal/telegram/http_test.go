package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"

	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiCall struct {
	method string
	form   map[string]string
}

// fakeAPI answers every Bot API method with an empty success result.
type fakeAPI struct {
	mu    sync.Mutex
	calls []apiCall
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseMultipartForm(1 << 20)
	call := apiCall{method: path.Base(r.URL.Path), form: map[string]string{}}
	for k, v := range r.Form {
		call.form[k] = v[0]
	}
	if r.MultipartForm != nil {
		for k, v := range r.MultipartForm.Value {
			call.form[k] = v[0]
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch call.method {
	case "sendMediaGroup":
		_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
	case "answerCallbackQuery", "leaveChat", "setMyCommands":
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":42,"type":"private"}}}`))
	}
}

func (f *fakeAPI) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func newTestClient(t *testing.T) (*HTTPClient, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient("test-token", func(context.Context, *models.Update) {}, WithServerURL(srv.URL))
	require.NoError(t, err)
	return client, api
}

func TestHTTPClient_NewHTTPClient(t *testing.T) {
	client, err := NewHTTPClient("test-token", func(context.Context, *models.Update) {}, WithDebug())
	require.NoError(t, err)
	assert.NotNil(t, client.bot)
}

func TestHTTPClient_SendMessage(t *testing.T) {
	client, api := newTestClient(t)

	msg, err := client.SendMessage(context.Background(), 42, "<b>hi</b>", SendOptions{
		ReplyTo:        7,
		DisablePreview: true,
		Buttons:        [][]Button{{{Text: "Comics", Data: "comics_5"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, msg.ID)

	require.Len(t, api.calls, 1)
	call := api.calls[0]
	assert.Equal(t, "sendMessage", call.method)
	assert.Equal(t, "42", call.form["chat_id"])
	assert.Equal(t, "<b>hi</b>", call.form["text"])
	assert.Equal(t, "HTML", call.form["parse_mode"])
	assert.Contains(t, call.form["reply_markup"], "comics_5")
	assert.Contains(t, call.form["reply_parameters"], `"message_id":7`)
}

func TestHTTPClient_SendPhotos_SplitsAlbums(t *testing.T) {
	client, api := newTestClient(t)

	urls := make([]string, 11)
	for i := range urls {
		urls[i] = "https://example.org/strip.png"
	}
	require.NoError(t, client.SendPhotos(context.Background(), 42, urls, 0))

	assert.Equal(t, []string{"sendMediaGroup", "sendPhoto"}, api.methods())
}

func TestHTTPClient_CallbackAndLeave(t *testing.T) {
	client, api := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.AnswerCallback(ctx, "cb-1", ""))
	require.NoError(t, client.LeaveChat(ctx, -100))
	require.NoError(t, client.SetCommands(ctx, []Command{{Command: "quote", Description: "Random quote"}}))

	assert.Equal(t, []string{"answerCallbackQuery", "leaveChat", "setMyCommands"}, api.methods())
}
