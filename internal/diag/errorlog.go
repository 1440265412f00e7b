// Package diag collects uncaught page errors for verification and debugging.
package diag

import (
	"sync"
	"time"
)

// DefaultLimit bounds how many entries an ErrorLog keeps.
const DefaultLimit = 1000

// Entry is one uncaught error.
type Entry struct {
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
	Time    time.Time `json:"time"`
}

// ErrorLog is an append-only list of uncaught errors. Once full, the oldest entries are
// dropped. It is safe for concurrent use because live exceptions arrive on their own
// goroutine.
type ErrorLog struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
	dropped int
	now     func() time.Time
}

// NewErrorLog returns a log holding at most limit entries (DefaultLimit when <= 0).
func NewErrorLog(limit int) *ErrorLog {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &ErrorLog{limit: limit, now: time.Now}
}

// Add appends one message.
func (l *ErrorLog) Add(message, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= l.limit {
		l.entries = l.entries[1:]
		l.dropped++
	}
	l.entries = append(l.entries, Entry{Message: message, Source: source, Time: l.now()})
}

// Record appends err with an empty source. Its signature matches dom.Document.OnError.
func (l *ErrorLog) Record(err error) {
	if err == nil {
		return
	}
	l.Add(err.Error(), "")
}

// Entries returns a copy of the log.
func (l *ErrorLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Messages returns just the messages, oldest first.
func (l *ErrorLog) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Message
	}
	return out
}

// Len returns the number of retained entries.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Dropped returns how many entries were evicted by the limit.
func (l *ErrorLog) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Reset empties the log.
func (l *ErrorLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.dropped = 0
}
