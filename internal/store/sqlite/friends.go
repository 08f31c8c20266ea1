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

const friendColumns = `id, user_id, friend_id, status, created_at, updated_at`

// CreateFriendRequest creates a new friend request (pending status).
func (s *SQLiteStore) CreateFriendRequest(ctx context.Context, userID, friendID string) (*store.Friend, error) {
	now := time.Now().UTC()
	friend := &store.Friend{
		ID:        uuid.NewString(),
		UserID:    userID,
		FriendID:  friendID,
		Status:    store.FriendStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO friends (id, user_id, friend_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		friend.ID, friend.UserID, friend.FriendID, string(friend.Status), friend.CreatedAt, friend.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert friend request: %w", store.ErrConflict)
		}
		return nil, fmt.Errorf("insert friend request: %w", err)
	}
	return friend, nil
}

// UpdateFriendStatus updates the status of a friendship.
func (s *SQLiteStore) UpdateFriendStatus(ctx context.Context, userID, friendID string, status store.FriendStatus) error {
	query := `
		UPDATE friends
		SET status = ?, updated_at = ?
		WHERE user_id = ? AND friend_id = ?
	`
	result, err := s.db.ExecContext(ctx, query, string(status), time.Now().UTC(), userID, friendID)
	if err != nil {
		return fmt.Errorf("update friend status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("friendship: %w", store.ErrNotFound)
	}
	return nil
}

// GetFriendship retrieves a friendship between two users (in either direction).
func (s *SQLiteStore) GetFriendship(ctx context.Context, userID, friendID string) (*store.Friend, error) {
	query := `
		SELECT ` + friendColumns + `
		FROM friends
		WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
	`
	return scanFriend(s.db.QueryRowContext(ctx, query, userID, friendID, friendID, userID))
}

// ListFriends lists friendships for a user, optionally filtered by status.
func (s *SQLiteStore) ListFriends(ctx context.Context, userID string, status *store.FriendStatus) ([]*store.Friend, error) {
	query := `
		SELECT ` + friendColumns + `
		FROM friends
		WHERE (user_id = ? OR friend_id = ?)
	`
	args := []any{userID, userID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []*store.Friend
	for rows.Next() {
		friend, err := scanFriend(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, friend)
	}
	return friends, rows.Err()
}

// IsFriend checks if two users are friends (accepted status in either direction).
func (s *SQLiteStore) IsFriend(ctx context.Context, userID, friendID string) (bool, error) {
	query := `
		SELECT 1 FROM friends
		WHERE ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))
		AND status = 'accepted'
	`
	var exists int
	err := s.db.QueryRowContext(ctx, query, userID, friendID, friendID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query friendship: %w", err)
	}
	return true, nil
}

// DeleteFriendship removes a friendship record.
func (s *SQLiteStore) DeleteFriendship(ctx context.Context, userID, friendID string) error {
	query := `DELETE FROM friends WHERE user_id = ? AND friend_id = ?`
	if _, err := s.db.ExecContext(ctx, query, userID, friendID); err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	return nil
}

func scanFriend(row interface{ Scan(...any) error }) (*store.Friend, error) {
	var friend store.Friend
	var status string
	err := row.Scan(&friend.ID, &friend.UserID, &friend.FriendID, &status, &friend.CreatedAt, &friend.UpdatedAt)
	if err != nil {
		return nil, notFound("friendship", err)
	}
	friend.Status = store.FriendStatus(status)
	return &friend, nil
}
