package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that everything needed to start is present and well-formed.
// All problems are reported at once.
func (c *Config) Validate() error {
	var errs []error
	required := func(name, env, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required (env %s)", name, env))
		}
	}

	required("firebase.database_url", "FIREBASE_DATABASE_URL", c.Firebase.DatabaseURL)
	required("firebase.feedback_path", "FIREBASE_FEEDBACK_REFERENCE", c.Firebase.FeedbackPath)
	required("trello.api_key", "TRELLO_API_KEY", c.Trello.APIKey)
	required("trello.token", "TRELLO_TOKEN", c.Trello.Token)
	required("trello.list_id", "FEEDBACK_LIST_ID", c.Trello.ListID)
	required("telegram.token", "TELEGRAM_BOT_API_KEY", c.Telegram.Token)
	required("telegram.chat_id", "TELEGRAM_CHAT_ID", c.Telegram.ChatID)
	required("dedup.path", "SAVED_IDS_FILE", c.Dedup.Path)

	for _, u := range []struct{ name, raw string }{
		{"firebase.database_url", c.Firebase.DatabaseURL},
		{"trello.base_url", c.Trello.BaseURL},
		{"telegram.api_url", c.Telegram.APIURL},
	} {
		if strings.TrimSpace(u.raw) == "" {
			continue
		}
		p, err := url.Parse(u.raw)
		if err != nil || (p.Scheme != "https" && p.Scheme != "http") || p.Host == "" {
			errs = append(errs, fmt.Errorf("%s: not an http(s) URL: %q", u.name, u.raw))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Dedup.Match)) {
	case "", "substring", "exact":
	default:
		errs = append(errs, fmt.Errorf("dedup.match: want substring or exact, got %q", c.Dedup.Match))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required when storage.driver is set"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if c.Telegram.RatePerSec < 0 || c.Logging.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("rate_per_sec must be >= 0"))
	}

	if _, err := c.Timeouts(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
