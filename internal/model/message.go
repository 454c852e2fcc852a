package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Message is a chat line inside a transaction.
type Message struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	SenderID      uuid.UUID
	Content       string
	CreatedAt     time.Time
	IsRead        bool
}

// Preview truncates content to maxLen runes.
func (m Message) Preview(maxLen int) string {
	r := []rune(m.Content)
	if len(r) <= maxLen {
		return m.Content
	}
	return string(r[:maxLen]) + "..."
}

// Conversation pairs an open transaction with its latest message (if any).
type Conversation struct {
	Transaction Transaction
	LastMessage *Message
}

// LastActivity is the latest message time, or the transaction creation time.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.CreatedAt
	}
	return c.Transaction.CreatedAt
}
