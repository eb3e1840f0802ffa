// Package correlation remembers which member most recently signaled intent
// to raise an alert in each community.
package correlation

import (
	"strings"
	"sync"
	"time"

	"github.com/alertaperu/community-alarm/internal/models"
)

// Table maps community -> pending reporter. Entries are read once and lapse after ttl.
type Table struct {
	mu      sync.Mutex
	entries map[string]models.PendingReporter
	ttl     time.Duration
	now     func() time.Time
}

// Option customizes a Table
type Option func(*Table)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		t.now = now
	}
}

// NewTable creates an empty table. A non-positive ttl disables expiry.
func NewTable(ttl time.Duration, opts ...Option) *Table {
	t := &Table{
		entries: make(map[string]models.PendingReporter),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordIntent stores the pending reporter for a community, replacing any unconsumed entry
func (t *Table) RecordIntent(community string, userID models.ExternalID) models.PendingReporter {
	entry := models.PendingReporter{
		Community:  key(community),
		ExternalID: userID,
		CreatedAt:  t.now(),
	}

	t.mu.Lock()
	t.entries[entry.Community] = entry
	t.mu.Unlock()

	return entry
}

// ConsumeIfPresent atomically removes and returns the pending reporter.
// Expired entries are removed and reported as absent.
func (t *Table) ConsumeIfPresent(community string) (models.ExternalID, bool) {
	k := key(community)

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[k]
	if !ok {
		return "", false
	}
	delete(t.entries, k)

	if t.expired(entry) {
		return "", false
	}
	return entry.ExternalID, true
}

// Peek returns the live entry for a community without consuming it
func (t *Table) Peek(community string) (models.PendingReporter, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key(community)]
	if !ok || t.expired(entry) {
		return models.PendingReporter{}, false
	}
	return entry, true
}

// Sweep drops expired entries and returns how many were removed
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, entry := range t.entries {
		if t.expired(entry) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// caller holds t.mu
func (t *Table) expired(entry models.PendingReporter) bool {
	return t.ttl > 0 && t.now().Sub(entry.CreatedAt) > t.ttl
}

func key(community string) string {
	return strings.ToLower(strings.TrimSpace(community))
}
