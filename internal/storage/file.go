package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "tickd/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.timers.snapshot.json (periodic snapshot)
//   - <prefix>.timers.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot. A journal row with
// an empty Status marks a deletion.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	timers       map[string]TimerRecord

	writes int
}

type journalRow struct {
	ID     string       `json:"id"`
	Delete bool         `json:"delete,omitempty"`
	Rec    *TimerRecord `json:"rec,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".timers.snapshot.json"
	journalPath := prefix + ".timers.journal.jsonl"

	// Load state from snapshot + journal.
	timers := map[string]TimerRecord{}
	_ = loadTimerSnapshot(snapPath, timers)
	_ = replayTimerJournal(journalPath, timers)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		timers:       timers,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) PutTimer(ctx context.Context, rec TimerRecord) error {
	_ = ctx
	if strings.TrimSpace(rec.ID) == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("timer journal closed")
	}
	s.timers[rec.ID] = rec
	return s.appendLocked(journalRow{ID: rec.ID, Rec: &rec})
}

func (s *fileStore) DeleteTimer(ctx context.Context, id string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("timer journal closed")
	}
	delete(s.timers, id)
	return s.appendLocked(journalRow{ID: id, Delete: true})
}

func (s *fileStore) LoadTimers(ctx context.Context) ([]TimerRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TimerRecord, 0, len(s.timers))
	for _, rec := range s.timers {
		out = append(out, rec)
	}
	return out, nil
}

func (s *fileStore) appendLocked(row journalRow) error {
	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(row); err != nil {
		return err
	}
	s.writes++
	if s.writes%500 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("timer journal compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.timers); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadTimerSnapshot(path string, out map[string]TimerRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]TimerRecord
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayTimerJournal(path string, out map[string]TimerRecord) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var row journalRow
		if err := json.Unmarshal(sc.Bytes(), &row); err != nil {
			continue
		}
		if row.ID == "" {
			continue
		}
		if row.Delete || row.Rec == nil {
			delete(out, row.ID)
			continue
		}
		out[row.ID] = *row.Rec
	}
	return sc.Err()
}
