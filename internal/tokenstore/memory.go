package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/iliyamo/qr-attendance/internal/clock"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process Store.  Expiry is evaluated lazily against the
// injected clock, and Sweep drops dead entries so long-running processes do
// not accumulate consumption markers.
type Memory struct {
	mu    sync.Mutex
	clock clock.Clock
	data  map[string]memoryEntry
}

// NewMemory returns an empty Memory store.  A nil clock uses the real one.
func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.Real()
	}
	return &Memory{clock: c, data: make(map[string]memoryEntry)}
}

// live returns the entry for key when it exists and has not expired.
// Callers must hold m.mu.
func (m *Memory) live(key string, now time.Time) (memoryEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
		delete(m.data, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (m *Memory) entry(value string, ttl time.Duration, now time.Time) memoryEntry {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	return e
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live(key, m.clock.Now())
	return e.value, ok, nil
}

func (m *Memory) PutWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = m.entry(value, ttl, m.clock.Now())
	return nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key, expected, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	cur, ok := m.live(key, now)
	if expected == "" {
		if ok {
			return false, nil
		}
	} else if !ok || cur.value != expected {
		return false, nil
	}
	m.data[key] = m.entry(value, ttl, now)
	return true, nil
}

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	n := 0
	for k, e := range m.data {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.data, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
