// Package chat owns the conversation: the ordered message sequence, its
// edit/delete consistency rules, and write-through persistence to the
// durable store.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a single turn in the conversation.
type Message struct {
	ID        string     `json:"id"`
	Text      string     `json:"message"`
	IsUser    bool       `json:"isUser"`
	Timestamp time.Time  `json:"timestamp"`
	Edited    bool       `json:"edited"`
	EditedAt  *time.Time `json:"editedAt"`
}

// clone returns a copy that shares no pointers with the original.
func (m Message) clone() Message {
	out := m
	if m.EditedAt != nil {
		t := *m.EditedAt
		out.EditedAt = &t
	}
	return out
}

// Stats summarizes the conversation for display.
type Stats struct {
	Count       int        `json:"count"`
	LastSavedAt *time.Time `json:"lastSavedAt"`
}

// ChangeReason identifies which operation produced a change notification.
type ChangeReason string

const (
	ReasonAdd        ChangeReason = "add"
	ReasonUpdate     ChangeReason = "update"
	ReasonUpdateUser ChangeReason = "update-user"
	ReasonRemove     ChangeReason = "remove"
	ReasonClear      ChangeReason = "clear"
	ReasonImport     ChangeReason = "import"
)

// ChangeEvent carries the full post-mutation state. Consumers re-derive
// their view from the snapshot instead of applying diffs.
type ChangeEvent struct {
	Reason   ChangeReason
	Messages []Message
	Stats    Stats
}

// Clock supplies timestamps. Injected so tests can pin time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// IDGenerator supplies unique message ids.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }
