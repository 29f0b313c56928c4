package store

import (
	"sync"

	"github.com/forenx/sentinel/internal/models"
)

// RecentBuffer keeps the most recent parsed entries in memory as a fixed
// capacity ring. It backs entry queries and ad-hoc stats when no
// ClickHouse archive is configured, and serves the freshest data when
// one is. Oldest entries are evicted as new uploads arrive.
type RecentBuffer struct {
	mu      sync.RWMutex
	entries []models.LogEntry
	head    int
	size    int

	added   int64
	evicted int64
}

// DefaultBufferSize is the default ring capacity.
const DefaultBufferSize = 100000

// NewRecentBuffer creates a buffer holding up to capacity entries.
// Non-positive capacities use the default.
func NewRecentBuffer(capacity int) *RecentBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &RecentBuffer{
		entries: make([]models.LogEntry, capacity),
	}
}

// Add appends entries in order, evicting the oldest when full. Batches
// larger than the capacity keep only their tail.
func (b *RecentBuffer) Add(entries []models.LogEntry) {
	if len(entries) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.entries)
	b.added += int64(len(entries))

	if len(entries) >= capacity {
		b.evicted += int64(b.size + len(entries) - capacity)
		copy(b.entries, entries[len(entries)-capacity:])
		b.head = 0
		b.size = capacity
		return
	}

	for _, e := range entries {
		idx := (b.head + b.size) % capacity
		if b.size == capacity {
			b.head = (b.head + 1) % capacity
			b.evicted++
		} else {
			b.size++
		}
		b.entries[idx] = e
	}
}

// Snapshot returns the buffered entries, oldest first.
func (b *RecentBuffer) Snapshot() []models.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.LogEntry, b.size)
	capacity := len(b.entries)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.head+i)%capacity]
	}
	return out
}

// Len returns the number of buffered entries.
func (b *RecentBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the ring capacity.
func (b *RecentBuffer) Cap() int {
	return len(b.entries)
}

// BufferStats reports buffer lifetime counters.
type BufferStats struct {
	// Size is the number of entries currently held.
	Size int `json:"size"`

	// Capacity is the ring capacity.
	Capacity int `json:"capacity"`

	// Added is the total number of entries ever added.
	Added int64 `json:"added"`

	// Evicted is the total number of entries pushed out.
	Evicted int64 `json:"evicted"`
}

// Stats returns buffer statistics.
func (b *RecentBuffer) Stats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BufferStats{
		Size:     b.size,
		Capacity: len(b.entries),
		Added:    b.added,
		Evicted:  b.evicted,
	}
}
