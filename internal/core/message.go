package core

import "time"

// Message is the domain model for a chat message delivered to clients.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	Attachments    []string
	CreatedAt      time.Time
}
