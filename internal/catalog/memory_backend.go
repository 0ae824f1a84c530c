package catalog

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is an in-process Backend with per-entry expiry.
type MemoryBackend struct {
	mu         sync.RWMutex
	now        func() time.Time
	maxEntries int
	entries    map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryBackend creates a MemoryBackend. A nil now uses time.Now.
func NewMemoryBackend(maxEntries int, now func() time.Time) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		now:        now,
		maxEntries: maxEntries,
		entries:    make(map[string]memoryEntry),
	}
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	entry, ok := b.entries[key]
	b.mu.RUnlock()
	if !ok {
		return nil, ErrMiss
	}
	if !b.now().Before(entry.expiresAt) {
		b.mu.Lock()
		if current, ok := b.entries[key]; ok && current.expiresAt.Equal(entry.expiresAt) {
			delete(b.entries, key)
		}
		b.mu.Unlock()
		return nil, ErrMiss
	}
	return cloneBytes(entry.value), nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	expiry := b.now().Add(ttl)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.cleanupLocked()
	if _, exists := b.entries[key]; !exists && len(b.entries) >= b.maxEntries {
		b.evictOneLocked()
	}
	b.entries[key] = memoryEntry{value: cloneBytes(value), expiresAt: expiry}
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.entries, key)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) cleanupLocked() {
	now := b.now()
	for key, entry := range b.entries {
		if !now.Before(entry.expiresAt) {
			delete(b.entries, key)
		}
	}
}

func (b *MemoryBackend) evictOneLocked() {
	for key := range b.entries {
		delete(b.entries, key)
		return
	}
}

func cloneBytes(in []byte) []byte {
	if in == nil {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
