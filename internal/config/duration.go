package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Timeouts holds every duration of Config, parsed.
type Timeouts struct {
	StreamIdle   time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	Trello       time.Duration
	Telegram     time.Duration
	StorageBusy  time.Duration
}

// Timeouts parses the duration fields, applying defaults to empty ones.
func (c *Config) Timeouts() (Timeouts, error) {
	var (
		t   Timeouts
		err error
	)
	fields := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"firebase.idle_timeout", c.Firebase.IdleTimeout, 90 * time.Second, &t.StreamIdle},
		{"firebase.reconnect_min", c.Firebase.ReconnectMin, time.Second, &t.ReconnectMin},
		{"firebase.reconnect_max", c.Firebase.ReconnectMax, time.Minute, &t.ReconnectMax},
		{"trello.timeout", c.Trello.Timeout, 15 * time.Second, &t.Trello},
		{"telegram.timeout", c.Telegram.Timeout, 15 * time.Second, &t.Telegram},
		{"storage.busy_timeout", c.Storage.BusyTimeout, 0, &t.StorageBusy},
	}
	for _, f := range fields {
		if *f.dst, err = ParseDurationOrDefault(f.path, f.raw, f.def); err != nil {
			return Timeouts{}, err
		}
	}
	if t.ReconnectMax < t.ReconnectMin {
		return Timeouts{}, fmt.Errorf("firebase.reconnect_max (%s) must be >= reconnect_min (%s)", t.ReconnectMax, t.ReconnectMin)
	}
	return t, nil
}
