package storage

import (
	"context"
	"errors"
	"strings"

	logx "tickd/pkg/logx"
)

// Store is the minimal persistence API used by the timer registry.
type Store interface {
	PutTimer(ctx context.Context, rec TimerRecord) error
	DeleteTimer(ctx context.Context, id string) error
	LoadTimers(ctx context.Context) ([]TimerRecord, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
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
