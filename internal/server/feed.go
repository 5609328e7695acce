package server

import (
	"sync"
	"time"

	"subject-focus/internal/session"
)

// DefaultFeedSize is the number of notifications kept for polling clients.
const DefaultFeedSize = 50

// Entry is one notification as served by GET /api/notifications.
type Entry struct {
	ID     uint64    `json:"id"`
	Level  string    `json:"level"`
	Title  string    `json:"title"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// Feed keeps the most recent notifications so a UI can poll for them.
// It implements session.Notifier.
type Feed struct {
	mu      sync.Mutex
	lastID  uint64
	entries []Entry
	size    int
	now     func() time.Time
}

// NewFeed creates a Feed keeping at most size entries.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{size: size, now: time.Now}
}

// Notify implements session.Notifier.
func (f *Feed) Notify(n session.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastID++
	f.entries = append(f.entries, Entry{
		ID:     f.lastID,
		Level:  n.Level.String(),
		Title:  n.Title,
		Detail: n.Detail,
		Time:   f.now(),
	})
	if len(f.entries) > f.size {
		f.entries = append(f.entries[:0:0], f.entries[len(f.entries)-f.size:]...)
	}
}

// Since returns the retained entries with an ID greater than after, oldest
// first.
func (f *Feed) Since(after uint64) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []Entry{}
	for _, e := range f.entries {
		if e.ID > after {
			out = append(out, e)
		}
	}
	return out
}

// LastID returns the ID of the newest notification, 0 when there is none.
func (f *Feed) LastID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastID
}
