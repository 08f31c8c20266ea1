package core

import "errors"

// Error codes reported to clients.
const (
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeBadRequest           = "bad_request"
	ErrCodeUnknownEvent         = "unknown_event"
	ErrCodeConversationNotFound = "conversation_not_found"
	ErrCodeNotMember            = "not_member"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeInternal             = "internal"
)

var (
	// ErrHubStopped is returned when the hub no longer accepts requests.
	ErrHubStopped = errors.New("hub stopped")
	// ErrEventDropped is returned by Emit when the client is gone or its
	// buffer is full.
	ErrEventDropped = errors.New("event dropped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

// NewError builds a CoreError.
func NewError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// ErrorEvent builds an EventError answering requestID.
func ErrorEvent(requestID, code, msg string) *Event {
	return &Event{Kind: EventError, RequestID: requestID, Error: NewError(code, msg)}
}
