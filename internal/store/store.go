// ABOUTME: Transcript data types and sentinel errors for cortex-chat persistence
// ABOUTME: Conversations hold an ordered message log keyed by a monotonically increasing seq

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when creating a conversation that already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// Default and maximum page sizes for ListConversations.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// maxTitleLength bounds titles derived from the first user prompt.
const maxTitleLength = 80

// Conversation is the summary row of a persisted transcript.
type Conversation struct {
	ID           string
	Title        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int
}
