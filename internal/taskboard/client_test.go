package taskboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	logx "feedbackbot/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:  srv.URL,
		APIKey:   "key-1",
		Token:    "secret-token",
		ListID:   "list-9",
		MemberID: "member-7",
		Timeout:  2 * time.Second,
	}, srv.Client(), logx.Nop())
}

func TestCreateCardSendsQuery(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/1/cards", r.URL.Path)
		got = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","shortUrl":"https://trello.com/c/abc"}`))
	})

	card, err := c.CreateCard(context.Background(), "Bug report", "crash & burn")
	require.NoError(t, err)
	assert.Equal(t, Card{ID: "c1", ShortURL: "https://trello.com/c/abc"}, card)

	assert.Equal(t, "key-1", got.Get("key"))
	assert.Equal(t, "secret-token", got.Get("token"))
	assert.Equal(t, "Bug report", got.Get("name"))
	assert.Equal(t, "crash & burn", got.Get("desc"))
	assert.Equal(t, "top", got.Get("pos"))
	assert.Equal(t, "list-9", got.Get("idList"))
	assert.Equal(t, "member-7", got.Get("idMembers"))
}

func TestCreateCardWithoutShortURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"c1"}`))
	})
	card, err := c.CreateCard(context.Background(), "Idea", "d")
	require.NoError(t, err)
	assert.Empty(t, card.ShortURL)
}

func TestCreateCardOkFalse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"message":"list closed"}`))
	})
	_, err := c.CreateCard(context.Background(), "Idea", "d")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "list closed")
}

func TestCreateCardHTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	})
	_, err := c.CreateCard(context.Background(), "Idea", "d")
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "401")
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	got := snippet([]byte(" " + strings.Repeat("é", 250) + " "))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("é", 200)+"...", got)
	assert.Equal(t, "short", snippet([]byte("short\n")))
}

func TestCreateCardTransportErrorIsRedacted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, APIKey: "key-1", Token: "secret-token", Timeout: time.Second}, nil, logx.Nop())
	_, err := c.CreateCard(context.Background(), "Idea", "d")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.NotContains(t, err.Error(), "secret-token")
}
