// Package taskboard files tracking cards on a Trello board.
package taskboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "feedbackbot/pkg/logx"
)

const DefaultBaseURL = "https://api.trello.com"

// ErrRejected marks application-level failures (non-2xx or ok:false).
var ErrRejected = errors.New("card rejected by task board")

type Config struct {
	BaseURL  string
	APIKey   string
	Token    string
	ListID   string
	MemberID string
	// Position is "top" unless overridden.
	Position string
	Timeout  time.Duration
}

// Card is the part of the created card the pipeline consumes.
type Card struct {
	ID       string `json:"id"`
	ShortURL string `json:"shortUrl"`
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, hc *http.Client, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Position == "" {
		cfg.Position = "top"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{cfg: cfg, http: hc, log: log}
}

// CreateCard creates a card named name with description desc in the
// configured list, assigned to the configured member.
//
// A successful response without shortUrl is not an error; the returned
// Card then has an empty ShortURL.
func (c *Client) CreateCard(ctx context.Context, name, desc string) (Card, error) {
	q := url.Values{}
	q.Set("key", c.cfg.APIKey)
	q.Set("token", c.cfg.Token)
	q.Set("name", name)
	q.Set("desc", desc)
	q.Set("pos", c.cfg.Position)
	q.Set("idList", c.cfg.ListID)
	q.Set("idMembers", c.cfg.MemberID)

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, c.cfg.BaseURL+"/1/cards?"+q.Encode(), http.NoBody)
	if err != nil {
		return Card{}, fmt.Errorf("build create card request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Card{}, fmt.Errorf("create card: %w", redact(err, c.cfg.Token, c.cfg.APIKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Card{}, fmt.Errorf("read create card response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return Card{}, fmt.Errorf("%w: http %d: %s", ErrRejected, resp.StatusCode, snippet(body))
	}

	var out struct {
		Card
		OK      *bool  `json:"ok"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Card{}, fmt.Errorf("decode create card response: %w", err)
	}
	if out.OK != nil && !*out.OK {
		return Card{}, fmt.Errorf("%w: %s", ErrRejected, out.Message)
	}

	c.log.Debug("card created",
		logx.String("card_id", out.ID),
		logx.String("short_url", out.ShortURL),
		logx.Duration("took", time.Since(start)),
	)
	return out.Card, nil
}

// redact strips credentials from transport errors, which quote the full URL.
func redact(err error, secrets ...string) error {
	msg := err.Error()
	changed := false
	for _, s := range secrets {
		if s == "" {
			continue
		}
		if strings.Contains(msg, s) {
			msg = strings.ReplaceAll(msg, s, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", msg, context.DeadlineExceeded)
	}
	return errors.New(msg)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if r := []rune(s); len(r) > 200 {
		s = string(r[:200]) + "..."
	}
	return s
}
