package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/vovakirdan/socialchat-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when email/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidEmail is returned when the email cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidName is returned when first or last name is missing.
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Registration is the input for creating an account.
type Registration struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Service provides account and credential operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with a hashed password and returns it with a token.
func (s *Service) Register(ctx context.Context, in Registration) (*store.User, string, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, "", ErrInvalidEmail
	}
	first := strings.TrimSpace(in.FirstName)
	last := strings.TrimSpace(in.LastName)
	if first == "" || last == "" || len(first) > 64 || len(last) > 64 {
		return nil, "", ErrInvalidName
	}
	if len(in.Password) < 8 {
		return nil, "", ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}

	user := &store.User{
		Email:        email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: hashedPassword,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", ErrUserExists
		}
		return nil, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login validates credentials and returns a token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("get user: %w", err)
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	return s.IssueToken(user)
}

// IssueToken signs a handshake token for user.
func (s *Service) IssueToken(user *store.User) (string, error) {
	token, err := GenerateToken(s.jwtConfig, user.ID, user.FirstName, user.LastName)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
