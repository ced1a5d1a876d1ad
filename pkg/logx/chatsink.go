package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "feedbackbot/internal/transport"
)

const (
	chatQueueSize   = 256
	chatSendTimeout = 10 * time.Second
	chatMaxLen      = 3500
	chatMaxValueLen = 600
)

type chatLine struct {
	to   kit.ChatTarget
	text string
}

// chatSink is a zerolog LevelWriter that forwards lines at or above a
// minimum level to a chat. Writes never block: over the rate limit or with a
// full queue the line is dropped.
type chatSink struct {
	sender kit.Sender
	queue  chan chatLine

	mu       sync.Mutex
	to       kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	start  sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

func newChatSink(sender kit.Sender) *chatSink {
	return &chatSink{
		sender: sender,
		queue:  make(chan chatLine, chatQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *chatSink) configure(cfg TelegramConfig) {
	rps := max(1, cfg.RatePerSec)

	c.mu.Lock()
	c.to = kit.ChatTarget{ChatID: strings.TrimSpace(cfg.ChatID), ThreadID: cfg.ThreadID}
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	noTarget := c.to.IsZero()
	c.mu.Unlock()

	if noTarget {
		fmt.Fprintln(Stderr(), "logx: telegram sink enabled without a chat id")
	}
	c.start.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.run(ctx)
	})
}

func (c *chatSink) run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ln := <-c.queue:
			sctx, cancel := context.WithTimeout(ctx, chatSendTimeout)
			_, _ = c.sender.SendText(sctx, ln.to, ln.text, &kit.SendOptions{DisablePreview: true})
			cancel()
		}
	}
}

func (c *chatSink) stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	to, minLevel, lim := c.to, c.minLevel, c.limiter
	c.mu.Unlock()

	if to.IsZero() || level < minLevel || lim == nil || !lim.Allow() {
		return len(p), nil
	}
	if text := renderForChat(p); text != "" {
		select {
		case c.queue <- chatLine{to: to, text: text}:
		default:
		}
	}
	return len(p), nil
}

// renderForChat turns one JSON log line into "[LEVEL] message" followed by
// "- key=value" lines in key order. Non-JSON input is passed through.
func renderForChat(p []byte) string {
	line := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return clip(line, chatMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	delete(m, "level")
	delete(m, "message")
	delete(m, "time")
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(m[k]), chatMaxValueLen))
	}
	return clip(b.String(), chatMaxLen)
}

// clip cuts s to at most n bytes on a rune boundary, marking the cut with "...".
func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut, tail := n, ""
	if n >= 10 {
		cut, tail = n-3, "..."
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + tail
}
