// Package logbuffer implements the bounded in-memory ring of recent
// structured log records exposed via GET /api/system/logs, grounded on
// original_source/.../app/main.py's _InMemoryLogHandler/SYSTEM_LOGS
// (a deque with a fixed maxlen, guarded by a lock, appended to from every
// log record). Here it attaches to zerolog as a zerolog.Hook instead of a
// logging.Handler.
package logbuffer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Entry is one captured log record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Ring is a fixed-capacity FIFO of the most recent log entries. It
// implements zerolog.Hook so it can be attached to any logger with
// `.Hook(ring)`.
type Ring struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	next     int
	full     bool
}

// New constructs a Ring holding up to capacity entries; capacity <= 0
// defaults to 2000, the original's deque maxlen.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 2000
	}
	return &Ring{entries: make([]Entry, capacity), capacity: capacity}
}

// Run implements zerolog.Hook.
func (r *Ring) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level == zerolog.NoLevel {
		return
	}
	entry := Entry{Timestamp: time.Now(), Level: level.String(), Message: msg}

	r.mu.Lock()
	r.entries[r.next] = entry
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Recent returns up to limit entries, most recent first, optionally
// filtered by level (empty string means no filter). limit <= 0 means no
// cap beyond the ring's own capacity.
func (r *Ring) Recent(limit int, level string) []Entry {
	r.mu.Lock()
	var ordered []Entry
	if r.full {
		ordered = append(ordered, r.entries[r.next:]...)
		ordered = append(ordered, r.entries[:r.next]...)
	} else {
		ordered = append(ordered, r.entries[:r.next]...)
	}
	r.mu.Unlock()

	// ordered is oldest-first; reverse for newest-first.
	for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
		ordered[i], ordered[j] = ordered[j], ordered[i]
	}

	if level != "" {
		filtered := ordered[:0:0]
		for _, e := range ordered {
			if e.Level == level {
				filtered = append(filtered, e)
			}
		}
		ordered = filtered
	}

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered
}
