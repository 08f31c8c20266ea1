package friends

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/socialchat-server/internal/store"
)

// Common errors for friend operations.
var (
	ErrCannotFriendSelf     = errors.New("cannot send friend request to yourself")
	ErrAlreadyFriends       = errors.New("already friends")
	ErrRequestAlreadyExists = errors.New("friend request already exists")
	ErrRequestNotFound      = errors.New("friend request not found")
	ErrUserNotFound         = errors.New("user not found")
	ErrNotFriends           = errors.New("not friends")
	ErrInvalidGroup         = errors.New("invalid group")
)

// Service provides friend management business logic.
type Service struct {
	store store.Store
}

// New creates a new FriendService.
func New(st store.Store) *Service {
	return &Service{
		store: st,
	}
}

// SendRequest sends a friend request from one user to another.
func (s *Service) SendRequest(ctx context.Context, fromUserID, toUserID string) (*store.Friend, error) {
	if fromUserID == toUserID {
		return nil, ErrCannotFriendSelf
	}

	if err := s.requireUser(ctx, toUserID); err != nil {
		return nil, err
	}

	existing, err := s.store.GetFriendship(ctx, fromUserID, toUserID)
	switch {
	case err == nil:
		if existing.Status == store.FriendStatusAccepted {
			return nil, ErrAlreadyFriends
		}
		return nil, ErrRequestAlreadyExists
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("get friendship: %w", err)
	}

	friend, err := s.store.CreateFriendRequest(ctx, fromUserID, toUserID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrRequestAlreadyExists
		}
		return nil, fmt.Errorf("create friend request: %w", err)
	}

	return friend, nil
}

// AcceptRequest accepts a pending friend request sent by fromUserID.
func (s *Service) AcceptRequest(ctx context.Context, userID, fromUserID string) error {
	existing, err := s.incomingRequest(ctx, userID, fromUserID)
	if err != nil {
		return err
	}

	err = s.store.UpdateFriendStatus(ctx, existing.UserID, existing.FriendID, store.FriendStatusAccepted)
	if err != nil {
		return fmt.Errorf("accept request: %w", err)
	}
	return nil
}

// RejectRequest rejects a pending friend request sent by fromUserID.
func (s *Service) RejectRequest(ctx context.Context, userID, fromUserID string) error {
	existing, err := s.incomingRequest(ctx, userID, fromUserID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteFriendship(ctx, existing.UserID, existing.FriendID); err != nil {
		return fmt.Errorf("reject request: %w", err)
	}
	return nil
}

// RemoveFriend deletes an accepted friendship in either direction.
func (s *Service) RemoveFriend(ctx context.Context, userID, friendID string) error {
	existing, err := s.store.GetFriendship(ctx, userID, friendID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFriends
		}
		return fmt.Errorf("get friendship: %w", err)
	}
	if existing.Status != store.FriendStatusAccepted {
		return ErrNotFriends
	}
	if err := s.store.DeleteFriendship(ctx, existing.UserID, existing.FriendID); err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

// ListFriends returns all accepted friends for a user.
func (s *Service) ListFriends(ctx context.Context, userID string) ([]*store.Friend, error) {
	status := store.FriendStatusAccepted
	friends, err := s.store.ListFriends(ctx, userID, &status)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

// ListPendingRequests returns incoming pending friend requests for a user.
func (s *Service) ListPendingRequests(ctx context.Context, userID string) ([]*store.Friend, error) {
	status := store.FriendStatusPending
	all, err := s.store.ListFriends(ctx, userID, &status)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}

	// Filter to only incoming requests (friend_id = userID)
	var incoming []*store.Friend
	for _, f := range all {
		if f.FriendID == userID {
			incoming = append(incoming, f)
		}
	}

	return incoming, nil
}

// IsFriend checks if two users are friends (accepted status).
func (s *Service) IsFriend(ctx context.Context, userID, friendID string) (bool, error) {
	return s.store.IsFriend(ctx, userID, friendID)
}

// CreateGroup creates a group conversation owned by ownerID. Every member
// must be an existing user and an accepted friend of the owner. The owner
// is always the first member.
func (s *Service) CreateGroup(ctx context.Context, ownerID, name string, memberIDs []string) (*store.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > 100 {
		return nil, fmt.Errorf("%w: name must be 1-100 characters", ErrInvalidGroup)
	}
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one member is required", ErrInvalidGroup)
	}

	members := make([]string, 0, len(memberIDs)+1)
	members = append(members, ownerID)
	for _, id := range memberIDs {
		if id == ownerID {
			continue
		}
		if err := s.requireUser(ctx, id); err != nil {
			return nil, fmt.Errorf("%w: %s", err, id)
		}
		ok, err := s.store.IsFriend(ctx, ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("check friendship: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFriends, id)
		}
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, fmt.Errorf("%w: at least one member is required", ErrInvalidGroup)
	}

	conv, err := s.store.CreateGroupConversation(ctx, name, members)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return conv, nil
}

// ListGroups returns the groups the user belongs to.
func (s *Service) ListGroups(ctx context.Context, userID string) ([]*store.Conversation, error) {
	groups, err := s.store.ListGroupConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return groups, nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}

// incomingRequest returns the pending request from fromUserID to userID.
func (s *Service) incomingRequest(ctx context.Context, userID, fromUserID string) (*store.Friend, error) {
	existing, err := s.store.GetFriendship(ctx, fromUserID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("get friendship: %w", err)
	}
	if existing.Status != store.FriendStatusPending || existing.FriendID != userID {
		return nil, ErrRequestNotFound
	}
	return existing, nil
}
