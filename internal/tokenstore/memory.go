package tokenstore

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store for single-node deployments and tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	stop    chan struct{}
	stopped bool
}

type memoryEntry struct {
	userID    int64
	expiresAt time.Time
}

// NewMemory creates an in-memory store. A janitor goroutine evicts
// expired entries until Close is called.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go m.janitor()
	return m
}

func (m *Memory) Set(ctx context.Context, token string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[token] = memoryEntry{userID: userID, expiresAt: time.Now().Add(m.ttl)}
	return nil
}

func (m *Memory) Get(ctx context.Context, token string) (int64, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[token]
	m.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return 0, false, nil
	}
	return entry.userID, true, nil
}

func (m *Memory) Revoke(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, token)
	return nil
}

func (m *Memory) RevokeAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}

// Close stops the janitor.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.stop)
	}
	return nil
}

func (m *Memory) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for token, entry := range m.entries {
				if now.After(entry.expiresAt) {
					delete(m.entries, token)
				}
			}
			m.mu.Unlock()
		}
	}
}
