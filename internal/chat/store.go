package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"SimpleChat/internal/storage"
)

// ErrInvalidFormat is returned by ImportMessages when the payload is not a
// message array or a {messages: [...]} wrapper.
var ErrInvalidFormat = errors.New("imported chat must be an array of messages")

// DefaultStorageKey is the durable-store key used when none is configured.
const DefaultStorageKey = "chatHistory"

// Options configures a Store. Zero fields get working defaults.
type Options struct {
	Storage    storage.Store
	StorageKey string
	Logger     *slog.Logger
	Clock      Clock
	IDs        IDGenerator
}

// Store owns the ordered message sequence. All mutation funnels through its
// methods; every mutating method persists the new state and then notifies
// subscribers synchronously, in registration order, before returning.
//
// Subscriber callbacks run with the store locked and must not call back
// into it; the ChangeEvent snapshot carries everything a consumer needs.
type Store struct {
	mu          sync.Mutex
	durable     storage.Store
	key         string
	logger      *slog.Logger
	clock       Clock
	ids         IDGenerator
	messages    []Message
	lastSavedAt *time.Time
	subs        []subscription
	nextSubID   int
}

type subscription struct {
	id int
	fn func(ChangeEvent)
}

type historyMeta struct {
	LastSavedAt *time.Time `json:"lastSavedAt"`
}

type historyEnvelope struct {
	Meta     historyMeta `json:"meta"`
	Messages []Message   `json:"messages"`
}

// NewStore creates a Store and loads any previously persisted history.
func NewStore(opts Options) *Store {
	if opts.Storage == nil {
		opts.Storage = storage.NewMemoryStore()
	}
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.IDs == nil {
		opts.IDs = uuidGenerator{}
	}

	s := &Store{
		durable: opts.Storage,
		key:     opts.StorageKey,
		logger:  opts.Logger,
		clock:   opts.Clock,
		ids:     opts.IDs,
	}
	s.messages, s.lastSavedAt = s.readFromStorage()
	return s
}

// readFromStorage loads the persisted history. A bare message array (the
// legacy blob shape) is accepted alongside the wrapped envelope. Any read
// or decode failure is logged and treated as an empty history.
func (s *Store) readFromStorage() ([]Message, *time.Time) {
	blob, ok, err := s.durable.Read(s.key)
	if err != nil {
		s.logger.Error("failed to read chat history", "key", s.key, "error", err)
		return []Message{}, nil
	}
	if !ok {
		return []Message{}, nil
	}

	var envelope historyEnvelope
	if err := json.Unmarshal(blob, &envelope); err == nil && envelope.Messages != nil {
		return envelope.Messages, envelope.Meta.LastSavedAt
	}

	var legacy []Message
	if err := json.Unmarshal(blob, &legacy); err == nil {
		return legacy, nil
	}

	s.logger.Error("failed to decode chat history, starting empty", "key", s.key)
	return []Message{}, nil
}

// writeToStorage persists the current state. A write failure is logged and
// otherwise ignored: the in-memory state stays authoritative for the session.
func (s *Store) writeToStorage() {
	now := s.clock.Now()
	s.lastSavedAt = &now

	envelope := historyEnvelope{
		Meta:     historyMeta{LastSavedAt: s.lastSavedAt},
		Messages: s.messages,
	}

	blob, err := json.Marshal(envelope)
	if err != nil {
		s.logger.Error("failed to encode chat history", "error", err)
		return
	}
	if err := s.durable.Write(s.key, blob); err != nil {
		s.logger.Warn("failed to save chat history", "key", s.key, "error", err)
	}
}

func (s *Store) snapshotLocked() []Message {
	out := make([]Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.clone()
	}
	return out
}

func (s *Store) statsLocked() Stats {
	return Stats{Count: len(s.messages), LastSavedAt: s.lastSavedAt}
}

func (s *Store) emitChangeLocked(reason ChangeReason) {
	event := ChangeEvent{
		Reason:   reason,
		Messages: s.snapshotLocked(),
		Stats:    s.statsLocked(),
	}
	for _, sub := range s.subs {
		sub.fn(event)
	}
}

// Subscribe registers fn for change notifications and returns a handle that
// removes the registration.
func (s *Store) Subscribe(fn func(ChangeEvent)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs = append(s.subs, subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// GetAllMessages returns a snapshot of the conversation in insertion order.
func (s *Store) GetAllMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// GetStats returns the current message count and last save time.
func (s *Store) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

// AddMessage appends a message to the conversation. Callers are expected to
// reject empty text before calling; the store performs no content checks.
func (s *Store) AddMessage(text string, isUser bool) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Message{
		ID:        s.ids.NewID(),
		Text:      text,
		IsUser:    isUser,
		Timestamp: s.clock.Now(),
	}
	s.messages = append(s.messages, entry)
	s.writeToStorage()
	s.emitChangeLocked(ReasonAdd)
	return entry.clone()
}

// UpdateUserMessage replaces the text of a user-authored message and marks
// it edited. It also reports the message immediately following the edited
// one when that message is a bot reply, so the caller can refresh the now
// stale answer. Unknown ids and bot-authored ids are a silent no-op.
func (s *Store) UpdateUserMessage(id, newText string) (updated, nextBot *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOfLocked(id)
	if index == -1 || !s.messages[index].IsUser {
		return nil, nil
	}

	target := &s.messages[index]
	target.Text = newText
	target.Edited = true
	editedAt := s.clock.Now()
	target.EditedAt = &editedAt

	if index+1 < len(s.messages) && !s.messages[index+1].IsUser {
		next := s.messages[index+1].clone()
		nextBot = &next
	}

	s.writeToStorage()
	s.emitChangeLocked(ReasonUpdateUser)

	u := target.clone()
	return &u, nextBot
}

// UpdateMessageContent overwrites a message's text directly, regardless of
// origin. It is how generated replies are delivered into a placeholder slot.
// markEdited controls whether the edit flags are touched: filling a
// placeholder should not look like a user edit, correcting an already
// delivered reply should. Returns nil when id is unknown.
func (s *Store) UpdateMessageContent(id, newText string, markEdited bool) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOfLocked(id)
	if index == -1 {
		return nil
	}

	target := &s.messages[index]
	target.Text = newText
	if markEdited {
		target.Edited = true
		editedAt := s.clock.Now()
		target.EditedAt = &editedAt
	}

	s.writeToStorage()
	s.emitChangeLocked(ReasonUpdate)

	u := target.clone()
	return &u
}

// RemoveMessage removes the message with the given id and every message
// after it. Truncating the tail keeps bot replies from outliving the user
// message that caused them. Returns the removed messages, oldest first;
// empty when id is unknown.
func (s *Store) RemoveMessage(id string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.indexOfLocked(id)
	if index == -1 {
		return []Message{}
	}

	removed := make([]Message, len(s.messages)-index)
	for i, msg := range s.messages[index:] {
		removed[i] = msg.clone()
	}
	s.messages = s.messages[:index]

	s.writeToStorage()
	s.emitChangeLocked(ReasonRemove)
	return removed
}

// ClearMessages empties the conversation and returns the pre-clear snapshot.
func (s *Store) ClearMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.snapshotLocked()
	s.messages = []Message{}

	s.writeToStorage()
	s.emitChangeLocked(ReasonClear)
	return removed
}

// ImportMessages replaces the conversation with a sanitized projection of
// raw. Accepted shapes are a bare message array and a {messages: [...]}
// wrapper; anything else fails with ErrInvalidFormat and leaves the
// conversation untouched. Entries without string text are dropped; missing
// ids and timestamps are regenerated.
func (s *Store) ImportMessages(raw []byte) ([]Message, error) {
	entries, err := decodeImportPayload(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	imported := make([]Message, 0, len(entries))
	for _, entry := range entries {
		msg, ok := s.sanitizeEntryLocked(entry)
		if !ok {
			continue
		}
		imported = append(imported, msg)
	}
	s.messages = imported

	s.writeToStorage()
	s.emitChangeLocked(ReasonImport)
	return s.snapshotLocked(), nil
}

// ExportMessages serializes the conversation as an indented JSON snapshot
// in the same envelope shape the durable store uses.
func (s *Store) ExportMessages() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	envelope := historyEnvelope{
		Meta:     historyMeta{LastSavedAt: s.lastSavedAt},
		Messages: s.messages,
	}
	blob, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode chat export: %w", err)
	}
	return string(blob), nil
}

func (s *Store) indexOfLocked(id string) int {
	for i, msg := range s.messages {
		if msg.ID == id {
			return i
		}
	}
	return -1
}
