package logging

import (
	"sync"
	"time"
)

// LogEntry is one record kept for the logs endpoint.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the newest entries up to a fixed capacity.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    uint64
}

// NewRingBuffer creates a buffer that holds size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, 0, max(size, 1))}
}

// Write stores entry, evicting the oldest one when the buffer is full.
// Entries are numbered in write order starting at 1.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.next++
	entry.Seq = rb.next
	if len(rb.entries) < cap(rb.entries) {
		rb.entries = append(rb.entries, entry)
		return
	}
	rb.entries[rb.slot(rb.next)] = entry
}

// ReadAll returns the buffered entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := len(rb.entries)
	if n == 0 {
		return nil
	}
	out := make([]LogEntry, 0, n)
	first := rb.next - uint64(n) + 1
	for seq := first; seq <= rb.next; seq++ {
		out = append(out, rb.entries[rb.slot(seq)])
	}
	return out
}

// Count returns the number of buffered entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// Dropped returns how many entries were evicted.
func (rb *RingBuffer) Dropped() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.next - uint64(len(rb.entries))
}

func (rb *RingBuffer) slot(seq uint64) int {
	return int((seq - 1) % uint64(cap(rb.entries)))
}
