package relay

import (
	"slices"
	"time"
)

// DefaultTypingTimeout is how long a typing signal stays active without a refresh.
const DefaultTypingTimeout = 2 * time.Second

// TypingEntry records that a display name is composing a message.
type TypingEntry struct {
	Username     string
	ConnectionID string // connection that last refreshed the entry
	Deadline     time.Time
}

func (e *TypingEntry) expired(now time.Time) bool {
	return !now.Before(e.Deadline)
}

// TypingTracker holds typing entries keyed by display name. Expiry is driven
// by Sweep rather than one timer per name; ListTyping hides expired entries
// that have not been swept yet.
// It is not safe for concurrent use; the Relay actor owns it.
type TypingTracker struct {
	timeout time.Duration
	entries map[string]*TypingEntry
	order   []string // insertion order
}

// NewTypingTracker creates a tracker with the given inactivity window.
func NewTypingTracker(timeout time.Duration) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingTracker{
		timeout: timeout,
		entries: make(map[string]*TypingEntry),
	}
}

// MarkTyping inserts or refreshes name's deadline to now plus the timeout.
// It returns true when name was not already typing.
func (t *TypingTracker) MarkTyping(name, connID string, now time.Time) bool {
	deadline := now.Add(t.timeout)

	if entry, ok := t.entries[name]; ok && !entry.expired(now) {
		entry.Deadline = deadline
		entry.ConnectionID = connID
		return false
	}

	// Either new, or expired but not yet swept: start over at the end.
	t.remove(name)
	t.entries[name] = &TypingEntry{Username: name, ConnectionID: connID, Deadline: deadline}
	t.order = append(t.order, name)
	return true
}

// MarkStoppedTyping removes name immediately. It returns true if name was
// typing; calling it for an absent name is a no-op.
func (t *TypingTracker) MarkStoppedTyping(name string) bool {
	return t.remove(name)
}

// ListTyping returns the names still typing at now, in insertion order.
func (t *TypingTracker) ListTyping(now time.Time) []string {
	names := make([]string, 0, len(t.order))
	for _, name := range t.order {
		if !t.entries[name].expired(now) {
			names = append(names, name)
		}
	}
	return names
}

// Sweep removes and returns every entry whose deadline has passed.
func (t *TypingTracker) Sweep(now time.Time) []TypingEntry {
	var expired []TypingEntry
	for _, name := range t.order {
		if entry := t.entries[name]; entry.expired(now) {
			expired = append(expired, *entry)
		}
	}
	for _, entry := range expired {
		t.remove(entry.Username)
	}
	return expired
}

// Len returns the number of entries, including expired ones not yet swept.
func (t *TypingTracker) Len() int {
	return len(t.entries)
}

func (t *TypingTracker) remove(name string) bool {
	if _, ok := t.entries[name]; !ok {
		return false
	}
	delete(t.entries, name)
	t.order = slices.DeleteFunc(t.order, func(s string) bool { return s == name })
	return true
}
