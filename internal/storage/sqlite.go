//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "tickd/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) PutTimer(ctx context.Context, rec TimerRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timers(id, total_ms, created_at, last_checked_at, paused_for_ms, paused_at, pause_until, status, reason, mission, termination, detached)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   total_ms=excluded.total_ms,
		   last_checked_at=excluded.last_checked_at,
		   paused_for_ms=excluded.paused_for_ms,
		   paused_at=excluded.paused_at,
		   pause_until=excluded.pause_until,
		   status=excluded.status,
		   reason=excluded.reason,
		   mission=excluded.mission,
		   termination=excluded.termination,
		   detached=excluded.detached`,
		rec.ID, rec.TotalMS, rec.CreatedAt.Format(time.RFC3339Nano), rec.LastCheckedAt.Format(time.RFC3339Nano),
		rec.PausedForMS, nullTime(rec.PausedAt), nullTime(rec.PauseUntil),
		rec.Status, nullStr(rec.Reason), nullStr(rec.Mission), nullStr(rec.Termination), boolInt(rec.Detached),
	)
	return err
}

func (s *sqliteStore) DeleteTimer(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if strings.TrimSpace(id) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) LoadTimers(ctx context.Context) ([]TimerRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, total_ms, created_at, last_checked_at, paused_for_ms, paused_at, pause_until, status, reason, mission, termination, detached
		 FROM timers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimerRecord
	for rows.Next() {
		var rec TimerRecord
		var createdAt, lastChecked string
		var pausedAt, pauseUntil, reason, mission, termination sql.NullString
		var detached int
		if err := rows.Scan(&rec.ID, &rec.TotalMS, &createdAt, &lastChecked, &rec.PausedForMS,
			&pausedAt, &pauseUntil, &rec.Status, &reason, &mission, &termination, &detached); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(createdAt)
		rec.LastCheckedAt = parseTime(lastChecked)
		if pausedAt.Valid {
			rec.PausedAt = parseTime(pausedAt.String)
		}
		if pauseUntil.Valid {
			rec.PauseUntil = parseTime(pauseUntil.String)
		}
		rec.Reason = reason.String
		rec.Mission = mission.String
		rec.Termination = termination.String
		rec.Detached = detached != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
