// Package rtdb subscribes to a Firebase Realtime Database location over the
// REST streaming protocol and reports children as they are added.
package rtdb

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	logx "feedbackbot/pkg/logx"
)

var (
	ErrStreamCancelled = errors.New("rtdb: stream cancelled by server")
	ErrAuthRevoked     = errors.New("rtdb: auth revoked")
)

// Handler receives one newly added child. It runs on the stream goroutine;
// the next child is not read until it returns.
type Handler func(ctx context.Context, key string, raw json.RawMessage)

type Config struct {
	DatabaseURL string
	Path        string
	// IdleTimeout drops the connection when nothing, keep-alives included,
	// arrives for this long. The server sends a keep-alive every ~30s.
	IdleTimeout time.Duration
}

// Source tracks which children were already delivered. The set outlives
// individual connections so a reconnect does not replay them.
type Source struct {
	cfg Config
	hc  *http.Client
	log logx.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func New(cfg Config, hc *http.Client, log logx.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("rtdb: database url is empty")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 90 * time.Second
	}
	if hc == nil {
		hc = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{cfg: cfg, hc: hc, log: log, seen: map[string]struct{}{}}, nil
}

// URL is the streaming endpoint of the configured location.
func (s *Source) URL() string {
	return LocationURL(s.cfg.DatabaseURL, s.cfg.Path) + ".json"
}

// LocationURL joins a database URL and a slash-separated path.
func LocationURL(databaseURL string, parts ...string) string {
	u := strings.TrimRight(databaseURL, "/")
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			u += "/" + p
		}
	}
	return u
}

// Seen reports how many children were delivered so far.
func (s *Source) Seen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// Run opens one streaming connection and dispatches events until the stream
// ends. It always returns a non-nil error; callers reconnect.
func (s *Source) Run(parent context.Context, h Handler) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("rtdb: connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("rtdb: connect: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	s.log.Info("stream connected", logx.String("path", s.cfg.Path))

	idle := time.AfterFunc(s.cfg.IdleTimeout, cancel)
	defer idle.Stop()

	err = readEvents(resp.Body, func(ev event) error {
		// Handlers may run long on a large initial snapshot.
		idle.Stop()
		defer idle.Reset(s.cfg.IdleTimeout)
		return s.dispatch(ctx, ev, h)
	})
	if parent.Err() != nil {
		return parent.Err()
	}
	if ctx.Err() != nil {
		return fmt.Errorf("rtdb: nothing received for %s", s.cfg.IdleTimeout)
	}
	return err
}

type event struct {
	name string
	data string
}

type payload struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

func (s *Source) dispatch(ctx context.Context, ev event, h Handler) error {
	switch ev.name {
	case "keep-alive", "":
		return nil
	case "cancel":
		return fmt.Errorf("%w: %s", ErrStreamCancelled, strings.TrimSpace(ev.data))
	case "auth_revoked":
		return ErrAuthRevoked
	case "put", "patch":
	default:
		s.log.Debug("stream event ignored", logx.String("event", ev.name))
		return nil
	}

	var p payload
	if err := json.Unmarshal([]byte(ev.data), &p); err != nil {
		s.log.Warn("stream payload undecodable", logx.String("event", ev.name), logx.Err(err))
		return nil
	}

	path := strings.Trim(p.Path, "/")
	switch {
	case path == "":
		children := map[string]json.RawMessage{}
		if isNull(p.Data) {
			return nil
		}
		if err := json.Unmarshal(p.Data, &children); err != nil {
			// A scalar at the location itself has no children.
			return nil
		}
		keys := make([]string, 0, len(children))
		for k := range children {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if isNull(children[k]) {
				if ev.name == "patch" {
					s.forget(k)
				}
				continue
			}
			s.deliver(ctx, k, children[k], h)
		}
	case !strings.Contains(path, "/") && ev.name == "put":
		if isNull(p.Data) {
			s.forget(path)
			return nil
		}
		s.deliver(ctx, path, p.Data, h)
	default:
		// Modification below an existing child.
	}
	return nil
}

func (s *Source) deliver(ctx context.Context, key string, raw json.RawMessage, h Handler) {
	s.mu.Lock()
	_, dup := s.seen[key]
	if !dup {
		s.seen[key] = struct{}{}
	}
	s.mu.Unlock()
	if dup {
		return
	}
	h(ctx, key, raw)
}

func (s *Source) forget(key string) {
	s.mu.Lock()
	delete(s.seen, key)
	s.mu.Unlock()
}

func isNull(raw json.RawMessage) bool {
	t := strings.TrimSpace(string(raw))
	return t == "" || t == "null"
}

// readEvents parses a text/event-stream body and calls fn per event.
// It returns io.ErrUnexpectedEOF when the server closes the stream.
func readEvents(r io.Reader, fn func(event) error) error {
	br := bufio.NewReader(r)
	var (
		ev   event
		data []string
	)
	for {
		line, err := br.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("rtdb: stream closed: %w", io.ErrUnexpectedEOF)
			}
			return fmt.Errorf("rtdb: read stream: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if ev.name != "" || len(data) > 0 {
				ev.data = strings.Join(data, "\n")
				if err := fn(ev); err != nil {
					return err
				}
			}
			ev, data = event{}, nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.name = value
		case "data":
			data = append(data, value)
		}
	}
}
