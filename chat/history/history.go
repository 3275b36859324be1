// Package history reconciles the application message model with the
// provider-native role/parts history representation.
//
// The mapping is one-directional: the application model is authoritative for
// display, so no provider-to-application conversion exists.
package history

import (
	"github.com/52hzxgfy/chatbot/chat/model"
)

// Provider-native roles. Assistant turns are recorded as "model" on the wire.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is a single content fragment of a history entry.
type Part struct {
	Text string `json:"text"`
}

// Entry is one provider-native history turn.
type Entry struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// NewEntry builds a single-part entry.
func NewEntry(role, text string) Entry {
	return Entry{Role: role, Parts: []Part{{Text: text}}}
}

// ToProviderHistory converts application messages into provider-native
// entries. Content is copied verbatim into a single text part; the output
// has the same length and relative order as the input.
func ToProviderHistory(messages []model.Message) []Entry {
	if len(messages) == 0 {
		return nil
	}
	entries := make([]Entry, len(messages))
	for i, m := range messages {
		role := RoleUser
		if m.Role == model.RoleAssistant {
			role = RoleModel
		}
		entries[i] = NewEntry(role, m.Content)
	}
	return entries
}
