package chat

import (
	"encoding/json"
	"time"
)

// importEntry is the tolerant decode target for one imported message.
// Fields mirror both the export envelope and older hand-edited files, so
// text may arrive under "message" or "text" and isUser may be any JSON
// value that coerces to a boolean.
type importEntry struct {
	ID        string          `json:"id"`
	Message   *string         `json:"message"`
	Text      *string         `json:"text"`
	IsUser    json.RawMessage `json:"isUser"`
	Timestamp json.RawMessage `json:"timestamp"`
	Edited    json.RawMessage `json:"edited"`
	EditedAt  json.RawMessage `json:"editedAt"`
}

type importWrapper struct {
	Messages []json.RawMessage `json:"messages"`
}

// decodeImportPayload accepts a bare message array or a {messages: [...]}
// wrapper. Any other shape, including unparsable input, is ErrInvalidFormat.
func decodeImportPayload(raw []byte) ([]importEntry, error) {
	// A nil slice after a successful unmarshal means the payload was the
	// JSON literal null, not an array.
	var bare []json.RawMessage
	if err := json.Unmarshal(raw, &bare); err == nil && bare != nil {
		return decodeImportEntries(bare), nil
	}

	var wrapper importWrapper
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Messages != nil {
		return decodeImportEntries(wrapper.Messages), nil
	}

	return nil, ErrInvalidFormat
}

// decodeImportEntries drops entries that do not decode as objects; they are
// sanitized (and possibly dropped) individually later.
func decodeImportEntries(items []json.RawMessage) []importEntry {
	entries := make([]importEntry, 0, len(items))
	for _, item := range items {
		var entry importEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// sanitizeEntryLocked normalizes one imported entry to the full Message
// shape. Entries without string text are rejected.
func (s *Store) sanitizeEntryLocked(entry importEntry) (Message, bool) {
	text := entry.Message
	if text == nil {
		text = entry.Text
	}
	if text == nil {
		return Message{}, false
	}

	msg := Message{
		ID:     entry.ID,
		Text:   *text,
		IsUser: coerceBool(entry.IsUser),
		Edited: coerceBool(entry.Edited),
	}
	if msg.ID == "" {
		msg.ID = s.ids.NewID()
	}

	if ts, ok := parseTime(entry.Timestamp); ok {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = s.clock.Now()
	}
	if ts, ok := parseTime(entry.EditedAt); ok {
		msg.EditedAt = &ts
	}

	return msg, true
}

// coerceBool applies JavaScript truthiness to an arbitrary JSON value.
func coerceBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s != ""
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		return v != nil
	}
	return false
}

func parseTime(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
