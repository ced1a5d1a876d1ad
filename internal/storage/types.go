package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Delivery records the outcome of one pipeline run.
// Keep it compact and schema-stable.
type Delivery struct {
	At         time.Time `json:"at"`
	RunID      string    `json:"run_id"`
	FeedbackID string    `json:"feedback_id"`
	Category   string    `json:"category,omitempty"`
	Outcome    string    `json:"outcome"`
	CardURL    string    `json:"card_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	TookMS     int64     `json:"took_ms"`
}
