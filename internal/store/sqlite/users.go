package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/socialchat-server/internal/store"
)

const userColumns = `id, email, first_name, last_name, password_hash, created_at`

// CreateUser stores a new user, assigning ID and CreatedAt when empty.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *store.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, email, first_name, last_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.FirstName, user.LastName, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", store.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *SQLiteStore) scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, notFound("user", err)
	}
	return &user, nil
}
