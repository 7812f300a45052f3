package tilecache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vk/tilegate/internal/tile"
)

// Memory is an in-process cache with per-entry TTL. Results are stored
// serialized so callers can never mutate a cached tile.
type Memory struct {
	mu         sync.RWMutex
	entries    map[string]*memoryEntry
	clock      clockwork.Clock
	maxEntries int
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory cache. maxEntries <= 0 means unlimited.
// When full, expired entries are evicted first, then an arbitrary one.
func NewMemory(clock clockwork.Clock, maxEntries int) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		entries:    make(map[string]*memoryEntry),
		clock:      clock,
		maxEntries: maxEntries,
	}
}

// Get returns a cached tile if present and not expired.
func (m *Memory) Get(_ context.Context, key string) (*tile.Result, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || m.clock.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	res, err := decode(e.data)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// Set stores a tile for ttl.
func (m *Memory) Set(_ context.Context, key string, res *tile.Result, ttl time.Duration) error {
	data, err := encode(res)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictLocked()
	}
	m.entries[key] = &memoryEntry{data: data, expiresAt: m.clock.Now().Add(ttl)}
	return nil
}

// EvictExpired removes expired entries and returns how many were dropped.
func (m *Memory) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	evicted := 0
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) evictLocked() {
	now := m.clock.Now()
	for key, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, key)
		}
	}
	if len(m.entries) < m.maxEntries {
		return
	}
	for key := range m.entries {
		delete(m.entries, key)
		return
	}
}

// StartEvictionTimer periodically evicts expired entries until the returned
// stop function is called.
func (m *Memory) StartEvictionTimer(interval time.Duration) func() {
	ticker := m.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				m.EvictExpired()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
