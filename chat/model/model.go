// Package model defines the application-side conversation model.
//
// The UI layer owns conversation persistence; these types are the shared
// vocabulary between the UI collaborator and the chat core. Messages are
// immutable once created and ordered by insertion.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// Role identifies the author of a message in the application model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation groups an ordered message sequence under a stable id.
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Messages    []Message `json:"messages"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// NewConversationID returns a time-based unique conversation identifier.
// The millisecond prefix keeps ids sortable by creation time; the shortuuid
// suffix disambiguates ids minted within the same millisecond.
func NewConversationID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), shortuuid.New())
}

// NewMessageID returns a unique message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(content string) Message {
	return Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	}
}

const titleRuneLimit = 10

// DeriveTitle builds a conversation title from the first user message:
// the leading runes of the content with an ellipsis when truncated.
func DeriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleRuneLimit {
		return content
	}
	return string(runes[:titleRuneLimit]) + "..."
}
