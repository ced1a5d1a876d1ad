package dedup

import (
	"context"
	"sync"
)

// MemoryLog is a non-durable Log with the same matching rules as FileLog.
type MemoryLog struct {
	mu      sync.Mutex
	idx     *index
	appends []string
}

func NewMemory(match Match, ids ...string) *MemoryLog {
	m := &MemoryLog{idx: newIndex(match)}
	for _, id := range ids {
		m.idx.add(id)
	}
	return m
}

func (m *MemoryLog) Contains(id string) bool {
	if id == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.idx.contains(id)
}

func (m *MemoryLog) Append(ctx context.Context, id string) error {
	if err := validID(id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.idx.add(id)
	m.appends = append(m.appends, id)
	m.mu.Unlock()
	return nil
}

// Appended returns the ids appended since construction, in order.
func (m *MemoryLog) Appended() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.appends...)
}
