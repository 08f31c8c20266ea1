package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/socialchat-server/internal/store"
)

// GetConversationByDirectKey retrieves a direct conversation by its direct_key.
func (s *SQLiteStore) GetConversationByDirectKey(ctx context.Context, directKey string) (*store.Conversation, error) {
	query := `
		SELECT id, type, name, direct_key, created_at
		FROM conversations
		WHERE direct_key = ? AND type = 'direct'
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, directKey))
	if err != nil {
		return nil, err
	}
	return s.withMembers(ctx, conv)
}

// GetConversation retrieves a conversation of the given type by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string, convType store.ConversationType) (*store.Conversation, error) {
	query := `
		SELECT id, type, name, direct_key, created_at
		FROM conversations
		WHERE id = ? AND type = ?
	`
	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id, string(convType)))
	if err != nil {
		return nil, err
	}
	return s.withMembers(ctx, conv)
}

// CreateDirectConversation creates the direct conversation between two users.
// Deduplication relies on the UNIQUE direct_key: a writer that loses the race
// gets the winner's conversation back.
func (s *SQLiteStore) CreateDirectConversation(ctx context.Context, userA, userB string) (*store.Conversation, error) {
	directKey := store.DirectKey(userA, userB)

	conv, err := s.GetConversationByDirectKey(ctx, directKey)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing conversation: %w", err)
	}

	conv = &store.Conversation{
		ID:        uuid.NewString(),
		Type:      store.ConversationTypeDirect,
		DirectKey: &directKey,
		Members:   []string{userA, userB},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insertConversation(ctx, conv); err != nil {
		if isUniqueViolation(err) {
			return s.GetConversationByDirectKey(ctx, directKey)
		}
		return nil, err
	}
	return conv, nil
}

// CreateGroupConversation creates a named group with the given members.
// Duplicate member ids are stored once; order of first appearance is kept.
func (s *SQLiteStore) CreateGroupConversation(ctx context.Context, name string, members []string) (*store.Conversation, error) {
	seen := make(map[string]struct{}, len(members))
	unique := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		unique = append(unique, m)
	}

	conv := &store.Conversation{
		ID:        uuid.NewString(),
		Type:      store.ConversationTypeGroup,
		Name:      name,
		Members:   unique,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insertConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ListGroupConversations lists groups the user is a member of, newest first.
func (s *SQLiteStore) ListGroupConversations(ctx context.Context, userID string) ([]*store.Conversation, error) {
	query := `
		SELECT c.id, c.type, c.name, c.direct_key, c.created_at
		FROM conversations c
		JOIN conversation_members cm ON cm.conversation_id = c.id
		WHERE c.type = 'group' AND cm.user_id = ?
		ORDER BY c.created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}

	var convs []*store.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	// Release the single connection before loading members.
	rows.Close()

	for _, conv := range convs {
		if _, err := s.withMembers(ctx, conv); err != nil {
			return nil, err
		}
	}
	return convs, nil
}

func (s *SQLiteStore) insertConversation(ctx context.Context, conv *store.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var name sql.NullString
	if conv.Name != "" {
		name = sql.NullString{String: conv.Name, Valid: true}
	}

	query := `
		INSERT INTO conversations (id, type, name, direct_key, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query, conv.ID, string(conv.Type), name, conv.DirectKey, conv.CreatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	memberQuery := `
		INSERT INTO conversation_members (conversation_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	for _, member := range conv.Members {
		if _, err := tx.ExecContext(ctx, memberQuery, conv.ID, member, conv.CreatedAt); err != nil {
			return fmt.Errorf("add member %s: %w", member, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) withMembers(ctx context.Context, conv *store.Conversation) (*store.Conversation, error) {
	query := `
		SELECT user_id FROM conversation_members
		WHERE conversation_id = ?
		ORDER BY rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	conv.Members = conv.Members[:0]
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		conv.Members = append(conv.Members, userID)
	}
	return conv, rows.Err()
}

func scanConversation(row interface{ Scan(...any) error }) (*store.Conversation, error) {
	var conv store.Conversation
	var convType string
	var name sql.NullString
	var directKey sql.NullString
	err := row.Scan(&conv.ID, &convType, &name, &directKey, &conv.CreatedAt)
	if err != nil {
		return nil, notFound("conversation", err)
	}

	conv.Type = store.ConversationType(convType)
	conv.Name = name.String
	if directKey.Valid {
		conv.DirectKey = &directKey.String
	}
	return &conv, nil
}
