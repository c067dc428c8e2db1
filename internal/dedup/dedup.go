// Package dedup suppresses near-duplicate bursty requests, guarding against
// a user rapidly re-triggering the same action before the first call
// completes.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

const (
	// Window is how long an identical request is considered an in-flight
	// duplicate and suppressed.
	Window = 5 * time.Second
	// Retention is how long a record survives before being purged.
	// Independent of Window: purging is housekeeping, not dedup semantics.
	Retention = 5 * time.Minute

	// keyFieldLimit caps how much of a free-text field feeds the key, so
	// long inputs hash in constant work.
	keyFieldLimit = 200
)

// Table records recently seen request keys. Safe for concurrent use.
type Table struct {
	mu        sync.Mutex
	seen      map[string]time.Time
	window    time.Duration
	retention time.Duration

	now func() time.Time // overridable in tests
}

// NewTable creates an empty table with the default window and retention.
func NewTable() *Table {
	return &Table{
		seen:      make(map[string]time.Time),
		window:    Window,
		retention: Retention,
		now:       time.Now,
	}
}

// IsDuplicate reports whether key was already seen within the dedup window.
// When it was not, the key is recorded as seen now. Records older than the
// retention period are purged before the lookup.
func (t *Table) IsDuplicate(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.now()
	for k, at := range t.seen {
		if n.Sub(at) > t.retention {
			delete(t.seen, k)
		}
	}

	if at, ok := t.seen[key]; ok && n.Sub(at) < t.window {
		return true
	}

	t.seen[key] = n
	return false
}

// Len returns the number of retained records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.seen)
}

// Key derives a stable request key from the operation name and the
// semantically relevant request fields. Free-text fields are trimmed and
// truncated before hashing so trailing whitespace or a trailing keystroke
// past the limit does not defeat deduplication.
func Key(op string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(op))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if len(f) > keyFieldLimit {
			f = f[:keyFieldLimit]
		}
		h.Write([]byte{0})
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
