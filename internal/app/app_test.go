package app

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"feedbackbot/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpstreams struct {
	rtdb     *httptest.Server
	trello   *httptest.Server
	telegram *httptest.Server

	mu       sync.Mutex
	cards    []string
	messages []map[string]string
}

func newFakeUpstreams(t *testing.T) *fakeUpstreams {
	t.Helper()
	f := &fakeUpstreams{}

	f.rtdb = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: put\ndata: "+`{"path":"/","data":{"f0":{"feedbackType":"IDEA"},"f1":{"feedbackType":"BUG","description":"crash on launch","version":"1.2","language":"en","systemInfo":"iOS 16"}}}`+"\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	f.trello = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.cards = append(f.cards, r.URL.Query().Get("name"))
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"id":"c1","shortUrl":"https://trello.com/c/abc"}`)
	}))
	f.telegram = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]string
		_ = json.NewDecoder(r.Body).Decode(&params)
		f.mu.Lock()
		f.messages = append(f.messages, params)
		f.mu.Unlock()
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":-100500,"type":"supergroup"},"date":1}}`)
	}))
	t.Cleanup(func() {
		f.rtdb.Close()
		f.trello.Close()
		f.telegram.Close()
	})
	return f
}

func TestAppForwardsNewFeedbackAndSkipsKnown(t *testing.T) {
	up := newFakeUpstreams(t)
	dir := t.TempDir()
	idsPath := filepath.Join(dir, "saved_ids.txt")
	auditPath := filepath.Join(dir, "deliveries.jsonl")
	require.NoError(t, os.WriteFile(idsPath, []byte("f0\n"), 0o600))

	t.Setenv("FIREBASE_DATABASE_URL", up.rtdb.URL)
	t.Setenv("FIREBASE_FEEDBACK_REFERENCE", "feedback")
	t.Setenv("FIREBASE_USERS_REFERENCE", "users")
	t.Setenv("FIREBASE_SERVICE_ACCOUNT", NoServiceAccount)
	t.Setenv("TRELLO_BASE_URL", up.trello.URL)
	t.Setenv("TRELLO_API_KEY", "key")
	t.Setenv("TRELLO_TOKEN", "token")
	t.Setenv("FEEDBACK_LIST_ID", "list")
	t.Setenv("ASSIGNEE_ID", "member")
	t.Setenv("TELEGRAM_API_URL", up.telegram.URL)
	t.Setenv("TELEGRAM_BOT_API_KEY", "123:abc")
	t.Setenv("TELEGRAM_CHAT_ID", "-100500")
	t.Setenv("TELEGRAM_RATE_PER_SEC", "50")
	t.Setenv("SAVED_IDS_FILE", idsPath)
	t.Setenv("STORAGE_DRIVER", "file")
	t.Setenv("STORAGE_PATH", auditPath)
	t.Setenv("LOG_LEVEL", "error")

	a, err := NewApp(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	// The audit line is written last, after the id is recorded.
	require.Eventually(t, func() bool {
		b, err := os.ReadFile(auditPath)
		return err == nil && strings.Contains(string(b), `"forwarded"`)
	}, 5*time.Second, 20*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(stopCtx, StopSIGTERM))

	up.mu.Lock()
	assert.Equal(t, []string{"Bug report"}, up.cards)
	require.Len(t, up.messages, 1)
	msg := up.messages[0]
	up.mu.Unlock()
	assert.Equal(t, "-100500", msg["chat_id"])
	assert.Equal(t, "Markdown", msg["parse_mode"])
	assert.True(t, strings.HasPrefix(msg["text"], "New Feedback: Bug report\n"))
	assert.Contains(t, msg["reply_markup"], "https://trello.com/c/abc")

	b, err := os.ReadFile(idsPath)
	require.NoError(t, err)
	assert.Equal(t, "f0\nf1\n", string(b))

	f, err := os.Open(auditPath)
	require.NoError(t, err)
	defer f.Close()
	outcomes := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var d storage.Delivery
		require.NoError(t, json.Unmarshal(sc.Bytes(), &d))
		outcomes[d.FeedbackID] = d.Outcome
	}
	assert.Equal(t, map[string]string{"f0": "skipped", "f1": "forwarded"}, outcomes)
}

func TestNewAppRejectsIncompleteConfig(t *testing.T) {
	t.Setenv("FIREBASE_DATABASE_URL", "")
	t.Setenv("TELEGRAM_BOT_API_KEY", "")
	_, err := NewApp(filepath.Join(t.TempDir(), "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIREBASE_DATABASE_URL")
}
