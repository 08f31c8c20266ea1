package chat

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

// Kind selects between direct and group conversations.
type Kind int

const (
	KindDirect Kind = iota
	KindGroup
)

// Service persists messages and fans them out to conversation rooms.
type Service struct {
	resolver *Resolver
	messages store.MessageStore
	rooms    Rooms
	logger   *zerolog.Logger
}

// NewService creates a message service.
func NewService(resolver *Resolver, messages store.MessageStore, rooms Rooms, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		resolver: resolver,
		messages: messages,
		rooms:    rooms,
		logger:   logger,
	}
}

// SendPrivate stores a message in the direct conversation with targetUserID
// and broadcasts it to every client joined to that conversation, the
// sender's tabs included. requestID is echoed on the broadcast event.
func (s *Service) SendPrivate(ctx context.Context, c *core.Client, requestID, targetUserID, text string, attachments []string) (*core.Message, error) {
	return s.send(ctx, c, requestID, KindDirect, targetUserID, text, attachments)
}

// SendGroup stores a message in an existing group and broadcasts it.
func (s *Service) SendGroup(ctx context.Context, c *core.Client, requestID, groupID, text string, attachments []string) (*core.Message, error) {
	return s.send(ctx, c, requestID, KindGroup, groupID, text, attachments)
}

// History returns the full message history of the resolved conversation
// and emits it to the requesting client only.
func (s *Service) History(ctx context.Context, c *core.Client, requestID, target string, kind Kind) ([]core.Message, error) {
	conv, err := s.resolve(ctx, c, kind, target)
	if err != nil {
		return nil, err
	}

	stored, err := s.messages.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	history := make([]core.Message, 0, len(stored))
	for _, m := range stored {
		history = append(history, toCoreMessage(m))
	}

	evKind := core.EventChatHistory
	if kind == KindGroup {
		evKind = core.EventGroupChatHistory
	}
	ev := &core.Event{Kind: evKind, RequestID: requestID, Messages: history}
	if err := s.rooms.Emit(c, ev); err != nil {
		return nil, fmt.Errorf("emit history: %w", err)
	}
	return history, nil
}

func (s *Service) send(ctx context.Context, c *core.Client, requestID string, kind Kind, target, text string, attachments []string) (*core.Message, error) {
	conv, err := s.resolve(ctx, c, kind, target)
	if err != nil {
		return nil, err
	}

	stored := &store.Message{
		ConversationID: conv.ID,
		SenderID:       c.UserID(),
		Text:           text,
		Attachments:    attachments,
	}
	if err := s.messages.SaveMessage(ctx, stored); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	msg := toCoreMessage(stored)
	ev := &core.Event{Kind: core.EventMessageSent, RequestID: requestID, Message: &msg}
	if err := s.rooms.Broadcast(conv.ID, ev); err != nil {
		return nil, fmt.Errorf("broadcast message: %w", err)
	}

	s.logger.Debug().
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Str("user_id", c.UserID()).
		Msg("message sent")
	return &msg, nil
}

func (s *Service) resolve(ctx context.Context, c *core.Client, kind Kind, target string) (*store.Conversation, error) {
	if kind == KindGroup {
		return s.resolver.ResolveGroup(ctx, c, target)
	}
	return s.resolver.ResolveDirect(ctx, c, target)
}

func toCoreMessage(m *store.Message) core.Message {
	attachments := m.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	return core.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Attachments:    attachments,
		CreatedAt:      m.CreatedAt,
	}
}
