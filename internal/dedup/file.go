package dedup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	logx "feedbackbot/pkg/logx"
)

// FileLog is the append-only text file backend.
type FileLog struct {
	log  logx.Logger
	path string

	mu   sync.Mutex
	f    *os.File
	idx  *index
	size int
}

// OpenFile loads path into memory, creating the file if it does not exist,
// and keeps it open for appends.
func OpenFile(path string, match Match, log logx.Logger) (*FileLog, error) {
	if path == "" {
		return nil, fmt.Errorf("dedup log path is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dedup log dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dedup log: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read dedup log: %w", err)
	}

	idx := newIndex(match)
	idx.load(string(b))

	l := &FileLog{log: log, path: path, f: f, idx: idx, size: len(idx.lines)}
	log.Info("dedup log loaded", logx.String("path", path), logx.Int("ids", l.size), logx.String("match", string(match)))
	return l, nil
}

func (l *FileLog) Contains(id string) bool {
	if id == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.idx.contains(id)
}

func (l *FileLog) Append(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return ErrClosed
	}
	if _, err := l.f.WriteString(id + "\n"); err != nil {
		return fmt.Errorf("append %s: %w", id, err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync dedup log: %w", err)
	}
	l.idx.add(id)
	l.size++
	return nil
}

// Len returns the number of ids appended or loaded, duplicates included.
func (l *FileLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

func (l *FileLog) Path() string { return l.path }

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
