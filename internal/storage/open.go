package storage

import (
	"context"
	"errors"
	"strings"

	logx "feedbackbot/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	AppendDelivery(ctx context.Context, d Delivery) error
	Close() error
}

// Open initializes the configured store.
// It returns ErrDisabled if storage is turned off.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, ErrDisabled
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
