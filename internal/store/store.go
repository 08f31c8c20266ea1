package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique constraint rejects a write.
var ErrConflict = errors.New("conflict")

// User represents an account in the system.
type User struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	CreatedAt    time.Time
}

// ConversationType defines different kinds of conversations.
type ConversationType string

const (
	ConversationTypeDirect ConversationType = "direct"
	ConversationTypeGroup  ConversationType = "group"
)

// Conversation represents a persisted chat thread.
type Conversation struct {
	ID        string
	Type      ConversationType
	Name      string   // groups only
	DirectKey *string  // direct only: "dm:{min}:{max}"
	Members   []string // user ids
	CreatedAt time.Time
}

// HasMember reports whether userID belongs to the conversation.
func (c *Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// DirectKey returns the key identifying the direct conversation of an
// unordered user pair.
func DirectKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return "dm:" + userA + ":" + userB
}

// Message represents a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	Attachments    []string
	CreatedAt      time.Time
}

// FriendStatus defines friend relationship status.
type FriendStatus string

const (
	FriendStatusPending  FriendStatus = "pending"
	FriendStatusAccepted FriendStatus = "accepted"
)

// Friend represents a friend relationship. UserID is the requester.
type Friend struct {
	ID        string
	UserID    string
	FriendID  string
	Status    FriendStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser stores a new user. Returns ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves a user by email.
	GetUserByEmail(ctx context.Context, email string) (*User, error)
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// GetConversationByDirectKey retrieves a direct conversation by its key.
	GetConversationByDirectKey(ctx context.Context, directKey string) (*Conversation, error)

	// CreateDirectConversation creates the direct conversation for a pair.
	// If another writer created it first, the existing one is returned.
	CreateDirectConversation(ctx context.Context, userA, userB string) (*Conversation, error)

	// CreateGroupConversation creates a named group with the given members.
	CreateGroupConversation(ctx context.Context, name string, members []string) (*Conversation, error)

	// GetConversation retrieves a conversation of the given type by ID.
	GetConversation(ctx context.Context, id string, convType ConversationType) (*Conversation, error)

	// ListGroupConversations lists groups the user is a member of.
	ListGroupConversations(ctx context.Context, userID string) ([]*Conversation, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns every message of a conversation in insertion order.
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
}

// FriendStore handles friendship persistence.
type FriendStore interface {
	// CreateFriendRequest creates a new pending friend request.
	CreateFriendRequest(ctx context.Context, userID, friendID string) (*Friend, error)

	// UpdateFriendStatus updates the status of a friendship.
	UpdateFriendStatus(ctx context.Context, userID, friendID string, status FriendStatus) error

	// GetFriendship retrieves a friendship between two users (in either direction).
	GetFriendship(ctx context.Context, userID, friendID string) (*Friend, error)

	// ListFriends lists friendships for a user, optionally filtered by status.
	ListFriends(ctx context.Context, userID string, status *FriendStatus) ([]*Friend, error)

	// IsFriend checks if two users are friends (accepted status in either direction).
	IsFriend(ctx context.Context, userID, friendID string) (bool, error)

	// DeleteFriendship removes a friendship record.
	DeleteFriendship(ctx context.Context, userID, friendID string) error
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	FriendStore

	// Close closes the underlying database connection.
	Close() error
}
