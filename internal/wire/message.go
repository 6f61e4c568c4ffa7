// Package wire converts backend message records into the display shape
// consumed by chat views and holds the small helpers around it.
package wire

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Delivery status of a message from the local user's point of view.
// Records arriving from the backend are always "sent"; only locally
// originated, not-yet-confirmed messages carry "pending".
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Sender identifies the author of a message as shown in the UI.
type Sender struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Initials  string `json:"initials"`
}

// Message is the normalized display shape. ID is empty for locally
// originated messages the backend has not confirmed yet; two messages
// sharing a non-empty ID are the same logical message.
type Message struct {
	ID        string `json:"id,omitempty"`
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	// Mine is nil when ownership could not be determined, which the
	// caller resolves with one of the Owned* strategies.
	Mine   *bool  `json:"isMine,omitempty"`
	Status string `json:"status"`
}

// Raw is a wire-format message record. The backend has emitted both
// field naming conventions over time, so each value is read from
// whichever alias is present.
type Raw struct {
	ID        any    `json:"id"`
	UserName  string `json:"user_name"`
	User      string `json:"user"`
	UserID    any    `json:"user_id"`
	UserIDAlt any    `json:"userId"`
	Content   string `json:"content"`
	Text      string `json:"text"`
	CreatedAt any    `json:"created_at"`
	Timestamp any    `json:"timestamp"`
}

// DecodeFrame unwraps an inbound frame into a Raw record, honoring the
// optional {"message": {...}} envelope convention.
func DecodeFrame(data []byte) (Raw, error) {
	var envelope struct {
		Message *Raw `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Message != nil {
		return *envelope.Message, nil
	}
	var raw Raw
	err := json.Unmarshal(data, &raw)
	return raw, err
}

// Normalize converts a wire record into the display shape. It is a pure
// function: every missing field is defaulted, nothing panics. When
// currentUserID is empty, ownership is left undetermined.
func Normalize(raw Raw, currentUserID string) Message {
	name := raw.UserName
	if name == "" {
		name = raw.User
	}
	if name == "" {
		name = "Anonymous"
	}

	identity := stringify(raw.UserID)
	if identity == "" {
		identity = stringify(raw.UserIDAlt)
	}
	if identity == "" {
		// Display name doubles as identity when the record carries no
		// stable id. See the ownership note on Owned* below.
		identity = name
	}

	parts := strings.Fields(name)
	first, last := "", ""
	if len(parts) > 0 {
		first = parts[0]
		last = strings.Join(parts[1:], " ")
	}

	text := raw.Content
	if text == "" {
		text = raw.Text
	}
	ts := stringify(raw.CreatedAt)
	if ts == "" {
		ts = stringify(raw.Timestamp)
	}

	msg := Message{
		ID:        stringify(raw.ID),
		Sender:    Sender{ID: identity, FirstName: first, LastName: last, Initials: initials(parts)},
		Text:      text,
		Timestamp: ts,
		Status:    StatusSent,
	}
	if currentUserID != "" {
		mine := identity == currentUserID
		msg.Mine = &mine
	}
	return msg
}

// initials takes the uppercased first letter of the first two name
// tokens, defaulting to "A" when no letters are available.
func initials(parts []string) string {
	var b strings.Builder
	for i := 0; i < len(parts) && i < 2; i++ {
		r, size := utf8.DecodeRuneInString(parts[i])
		if size == 0 || r == utf8.RuneError {
			continue
		}
		b.WriteString(strings.ToUpper(string(r)))
	}
	if b.Len() == 0 {
		return "A"
	}
	return b.String()
}

// OwnedByID reports whether the message belongs to the user with the
// given stable identifier.
//
// OwnedByID and OwnedByDisplayName are deliberately separate: existing
// call sites compare ownership against a numeric id in one path and a
// full display name in the other, and the two disagree after renames.
// Integrations should settle on one canonical identifier and use a
// single strategy.
func OwnedByID(m Message, currentUserID string) bool {
	return currentUserID != "" && m.Sender.ID == currentUserID
}

// OwnedByDisplayName reports ownership by comparing the sender identity
// against the user's full display name.
func OwnedByDisplayName(m Message, firstName, lastName string) bool {
	full := strings.TrimSpace(firstName + " " + lastName)
	return full != "" && m.Sender.ID == full
}

// AppendUnique appends msg unless a message with the same non-empty ID
// is already present.
func AppendUnique(list []Message, msg Message) []Message {
	if msg.ID != "" {
		for _, existing := range list {
			if existing.ID == msg.ID {
				return list
			}
		}
	}
	return append(list, msg)
}

// stringify renders a loosely typed wire value as a string, with JSON
// numbers formatted without a trailing ".0".
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
