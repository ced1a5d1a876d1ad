package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	kit "feedbackbot/internal/transport"
	logx "feedbackbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI records sendMessage calls and answers like the Bot API.
type fakeBotAPI struct {
	mu    sync.Mutex
	calls []map[string]string
	fail  string // description for ok:false answers
}

func (f *fakeBotAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/bottest-token/sendMessage"), r.URL.Path)
		var params map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))

		f.mu.Lock()
		f.calls = append(f.calls, params)
		n := len(f.calls)
		fail := f.fail
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail != "" {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"` + fail + `"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":` + strconv.Itoa(n) + `,"chat":{"id":-100500,"type":"supergroup"},"date":1}}`))
	}
}

func (f *fakeBotAPI) snapshot() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.calls...)
}

func newTestSender(t *testing.T, api *fakeBotAPI) *Sender {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	s, err := New(Config{Token: "test-token", APIURL: srv.URL, Timeout: 2 * time.Second, RatePerSec: 100}, logx.Nop())
	require.NoError(t, err)
	return s
}

func TestSendTextEncodesMarkupAndParseMode(t *testing.T) {
	api := &fakeBotAPI{}
	s := newTestSender(t, api)

	ref, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: "-100500"}, "New Feedback: Bug report", &kit.SendOptions{
		ParseMode: "Markdown",
		Keyboard: [][]kit.URLButton{{
			{Text: "🙋User in FIREBASE", URL: "https://db.example/users/u9"},
			{Text: "🎫 TRELLO ticket", URL: "https://trello.com/c/abc"},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ref.MessageID)
	assert.Equal(t, "-100500", ref.ChatID)

	calls := api.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "-100500", calls[0]["chat_id"])
	assert.Equal(t, "New Feedback: Bug report", calls[0]["text"])
	assert.Equal(t, "Markdown", calls[0]["parse_mode"])

	var markup struct {
		InlineKeyboard [][]struct {
			Text string `json:"text"`
			URL  string `json:"url"`
		} `json:"inline_keyboard"`
	}
	require.NoError(t, json.Unmarshal([]byte(calls[0]["reply_markup"]), &markup))
	require.Len(t, markup.InlineKeyboard, 1)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, "https://db.example/users/u9", markup.InlineKeyboard[0][0].URL)
	assert.Equal(t, "https://trello.com/c/abc", markup.InlineKeyboard[0][1].URL)
}

func TestSendTextWithoutButtonsOmitsMarkup(t *testing.T) {
	api := &fakeBotAPI{}
	s := newTestSender(t, api)

	_, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: "@feedback"}, "hi", &kit.SendOptions{Keyboard: [][]kit.URLButton{{}}})
	require.NoError(t, err)

	calls := api.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "@feedback", calls[0]["chat_id"])
	_, has := calls[0]["reply_markup"]
	assert.False(t, has)
}

func TestSendTextOkFalseIsError(t *testing.T) {
	api := &fakeBotAPI{fail: "Bad Request: chat not found"}
	s := newTestSender(t, api)

	_, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: "1"}, "hi", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestSendTextRejectsEmpty(t *testing.T) {
	s := newTestSender(t, &fakeBotAPI{})
	_, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: "1"}, "  ", nil)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	line := strings.Repeat("a", 30)
	text := strings.Join([]string{line, line, line, line}, "\n")
	chunks := splitText(text, 70, "")
	require.Len(t, chunks, 2)
	assert.Equal(t, line+"\n"+line, chunks[0])
	assert.Equal(t, line+"\n"+line, chunks[1])
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `snake\_case \*bold\* \[link]`, EscapeMarkdown("snake_case *bold* [link]"))
	assert.Equal(t, "\\`x\\`", EscapeMarkdown("`x`"))
	assert.Equal(t, "plain", EscapeMarkdown("plain"))
}
