package snippets

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Preset is a named rewrite configuration the user can pick by ID instead
// of dialing tone and length by hand.
type Preset struct {
	ID        string
	Name      string
	Tone      float64
	Length    float64
	CreatedAt time.Time
}

// Entry is one completed rewrite or chat, kept so the user can re-insert
// recent results.
type Entry struct {
	ID        string
	Operation string // "rewrite" or "chat"
	Input     string
	Output    string
	CreatedAt time.Time
}
