package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "feedbackbot/internal/transport"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	chats []string
}

func (r *recordingSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	r.chats = append(r.chats, to.ChatID)
	return kit.MessageRef{}, nil
}

func (r *recordingSender) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...), append([]string(nil), r.chats...)
}

func TestWriterLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "pipeline"))

	log.Debug("hidden")
	log.Info("feedback forwarded", String("feedback_id", "f1"), Int("n", 2), Err(errors.New("boom")), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "feedback forwarded", m["message"])
	assert.Equal(t, "pipeline", m["comp"])
	assert.Equal(t, "f1", m["feedback_id"])
	assert.EqualValues(t, 2, m["n"])
	assert.Contains(t, m["caller"], "logging_test.go:")
}

func TestZeroAndNopLoggers(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Info("dropped")

	nop := Nop()
	assert.False(t, nop.IsZero())
	nop.Error("dropped")
}

func TestServiceFileSinkAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, log := New(Config{Level: "warn", File: FileConfig{Enabled: true, Path: path}}, nil)

	log.Info("not written")
	log.Warn("written")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("after apply")
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.NotContains(t, out, "not written")
	assert.Contains(t, out, `"written"`)
	assert.Contains(t, out, "after apply")
}

func TestTelegramSinkRespectsMinLevel(t *testing.T) {
	rs := &recordingSender{}
	svc, log := New(Config{
		Level:    "debug",
		File:     FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "bot.log")},
		Telegram: TelegramConfig{Enabled: true, ChatID: "-100", MinLevel: "warn", RatePerSec: 10},
	}, rs)
	defer svc.Close()

	log.Info("quiet")
	log.Error("stream dropped", String("path", "feedback"))

	require.Eventually(t, func() bool {
		sent, _ := rs.snapshot()
		return len(sent) == 1
	}, 2*time.Second, 10*time.Millisecond)

	sent, chats := rs.snapshot()
	assert.Equal(t, []string{"-100"}, chats)
	assert.True(t, strings.HasPrefix(sent[0], "[ERROR] stream dropped"))
	assert.Contains(t, sent[0], "\n- path=feedback")
}

func TestRenderForChat(t *testing.T) {
	got := renderForChat([]byte(`{"level":"warn","time":"x","message":"hi","b":2,"a":"1"}`))
	assert.Equal(t, "[WARN] hi\n- a=1\n- b=2", got)
	assert.Equal(t, "not json", renderForChat([]byte("not json\n")))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" warning ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud", zerolog.InfoLevel))
}

func TestClipKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcdeé...", clip("abcdeééé", 10))
}
