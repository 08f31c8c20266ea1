package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id,omitempty"`
}

// Inbound event names.
const (
	EventSendPrivateMessage = "send-private-message"
	EventGetChatHistory     = "get-chat-history"
	EventSendGroupMessage   = "send-group-message"
	EventGetGroupChat       = "get-group-chat"
)

// Outbound event names.
const (
	EventConnected        = "connected"
	EventMessageSent      = "message-sent"
	EventChatHistory      = "chat-history"
	EventGroupChatHistory = "group-chat-history"
	EventServerError      = "server_error"
)

// PrivateMessageData is the payload of send-private-message. Text or at
// least one attachment is required.
type PrivateMessageData struct {
	Text         string   `json:"text" validate:"max=4000"`
	TargetUserID string   `json:"targetUserId" validate:"required,max=128"`
	Attachments  []string `json:"attachments,omitempty" validate:"omitempty,max=10,dive,required,max=2048"`
}

// GroupMessageData is the payload of send-group-message. Text or at least
// one attachment is required.
type GroupMessageData struct {
	Text        string   `json:"text" validate:"max=4000"`
	GroupID     string   `json:"groupId" validate:"required,max=128"`
	Attachments []string `json:"attachments,omitempty" validate:"omitempty,max=10,dive,required,max=2048"`
}

// Content returns the text and attachments of a message payload.
func (d PrivateMessageData) Content() (string, []string) { return d.Text, d.Attachments }

// Content returns the text and attachments of a message payload.
func (d GroupMessageData) Content() (string, []string) { return d.Text, d.Attachments }

// TargetRule validates the bare-string payloads of the history events.
const TargetRule = "required,max=128"

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Event     string `json:"event"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// UserData identifies the connected user.
type UserData struct {
	ID        string `json:"id"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// ConnectedData acknowledges a successful handshake.
type ConnectedData struct {
	User UserData `json:"user"`
}

// MessageData is a persisted chat message.
type MessageData struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text"`
	Attachments    []string  `json:"attachments"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ErrorData describes a failed operation.
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}
