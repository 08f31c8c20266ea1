package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventConnected acknowledges a successful handshake.
	EventConnected EventKind = iota
	// EventMessageSent delivers a persisted message to a conversation room.
	EventMessageSent
	// EventChatHistory delivers direct conversation history to one client.
	EventChatHistory
	// EventGroupChatHistory delivers group conversation history to one client.
	EventGroupChatHistory
	// EventError notifies a client about a failed operation.
	EventError
)

// String returns the wire name of the event.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventMessageSent:
		return "message-sent"
	case EventChatHistory:
		return "chat-history"
	case EventGroupChatHistory:
		return "group-chat-history"
	case EventError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind
	// RequestID echoes the inbound request this event answers, if any.
	RequestID string
	User      *Identity  // EventConnected
	Message   *Message   // EventMessageSent
	Messages  []Message  // history events
	Error     *CoreError // EventError
}
