package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

var (
	// ErrConversationNotFound is returned when a group id matches no group.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNotMember is returned when the caller is not a member of the group.
	ErrNotMember = errors.New("not a member of this conversation")
	// ErrInvalidTarget is returned for an empty target or a message to self.
	ErrInvalidTarget = errors.New("invalid target")
)

// directLookupTimeout bounds a shared direct lookup, which outlives the
// cancellation of whichever caller started it.
const directLookupTimeout = 10 * time.Second

// Rooms is the broadcast layer the chat services talk to. *core.Hub
// implements it.
type Rooms interface {
	Join(c *core.Client, room string) error
	Emit(c *core.Client, ev *core.Event) error
	Broadcast(room string, ev *core.Event) error
}

// Resolver maps a client's intent onto a persisted conversation and
// subscribes the client to that conversation's room.
type Resolver struct {
	store             store.ConversationStore
	rooms             Rooms
	requireMembership bool
	logger            *zerolog.Logger

	flight singleflight.Group
}

// NewResolver creates a conversation resolver. With requireMembership set,
// only members may resolve a group.
func NewResolver(st store.ConversationStore, rooms Rooms, requireMembership bool, logger *zerolog.Logger) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Resolver{
		store:             st,
		rooms:             rooms,
		requireMembership: requireMembership,
		logger:            logger,
	}
}

// ResolveDirect finds or creates the direct conversation between the client
// and targetUserID and joins the client to its room. Concurrent calls for
// the same pair share one lookup.
func (r *Resolver) ResolveDirect(ctx context.Context, c *core.Client, targetUserID string) (*store.Conversation, error) {
	if targetUserID == "" || targetUserID == c.UserID() {
		return nil, ErrInvalidTarget
	}

	userID := c.UserID()
	key := store.DirectKey(userID, targetUserID)
	ch := r.flight.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), directLookupTimeout)
		defer cancel()

		conv, err := r.store.GetConversationByDirectKey(ctx, key)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("find direct conversation: %w", err)
		}

		conv, err = r.store.CreateDirectConversation(ctx, userID, targetUserID)
		if err != nil {
			return nil, fmt.Errorf("create direct conversation: %w", err)
		}
		r.logger.Debug().
			Str("conversation_id", conv.ID).
			Str("direct_key", key).
			Msg("direct conversation created")
		return conv, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}

	conv := res.Val.(*store.Conversation)
	if err := r.rooms.Join(c, conv.ID); err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	return conv, nil
}

// ResolveGroup looks up an existing group and joins the client to its room.
// Groups are never created here.
func (r *Resolver) ResolveGroup(ctx context.Context, c *core.Client, groupID string) (*store.Conversation, error) {
	if groupID == "" {
		return nil, ErrInvalidTarget
	}

	conv, err := r.store.GetConversation(ctx, groupID, store.ConversationTypeGroup)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("find group: %w", err)
	}

	if r.requireMembership && !conv.HasMember(c.UserID()) {
		return nil, ErrNotMember
	}

	if err := r.rooms.Join(c, conv.ID); err != nil {
		return nil, fmt.Errorf("join room: %w", err)
	}
	return conv, nil
}
