package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/socialchat-server/internal/store"
)

// SaveMessage persists a message to storage.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Attachments == nil {
		msg.Attachments = []string{}
	}

	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, text, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Text, string(attachments), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages retrieves the full history of a conversation in insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, sender_id, text, attachments, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		var msg store.Message
		var attachments string
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &attachments, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of %s: %w", msg.ID, err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}
