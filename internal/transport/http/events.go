package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/proto"
	"github.com/vovakirdan/socialchat-server/internal/service/chat"
)

// errBadPayload marks inbound payloads that failed decoding or validation.
var errBadPayload = errors.New("bad payload")

// Emitter delivers an event to one client.
type Emitter interface {
	Emit(c *core.Client, ev *core.Event) error
}

// EventRouter turns inbound websocket events into chat operations.
type EventRouter struct {
	chat          *chat.Service
	emitter       Emitter
	validate      *validator.Validate
	ratePerMinute int
	log           *zerolog.Logger
}

// NewEventRouter creates a router. ratePerMinute <= 0 disables limiting.
func NewEventRouter(chatService *chat.Service, emitter Emitter, ratePerMinute int, logger *zerolog.Logger) *EventRouter {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterStructValidation(messageContentRule, proto.PrivateMessageData{}, proto.GroupMessageData{})

	return &EventRouter{
		chat:          chatService,
		emitter:       emitter,
		validate:      validate,
		ratePerMinute: ratePerMinute,
		log:           logger,
	}
}

type eventHandler func(ctx context.Context, requestID string, data json.RawMessage) error

// Binding holds the handlers of one connection. It is created once per
// connection and is not safe for concurrent use.
type Binding struct {
	client   *core.Client
	router   *EventRouter
	handlers map[string]eventHandler
	limiter  *rateLimiter
	log      zerolog.Logger
}

// Bind builds the per-connection handler table.
func (r *EventRouter) Bind(c *core.Client) *Binding {
	b := &Binding{
		client:  c,
		router:  r,
		limiter: newRateLimiter(r.ratePerMinute),
		log: r.log.With().
			Str("client_id", c.ID).
			Str("user_id", c.UserID()).
			Logger(),
	}
	b.handlers = map[string]eventHandler{
		proto.EventSendPrivateMessage: b.sendPrivateMessage,
		proto.EventGetChatHistory:     b.getChatHistory,
		proto.EventSendGroupMessage:   b.sendGroupMessage,
		proto.EventGetGroupChat:       b.getGroupChat,
	}
	return b
}

// Dispatch runs the handler for one inbound event. Failures are reported to
// the client as server_error events; the returned error is non-nil only when
// the client can no longer be reached.
func (b *Binding) Dispatch(ctx context.Context, inbound proto.Inbound) error {
	log := b.log.With().Str("event", inbound.Event).Str("request_id", inbound.RequestID).Logger()

	if !b.limiter.allow() {
		log.Warn().Msg("rate limit exceeded")
		return b.fail(inbound.RequestID, core.ErrCodeRateLimited, "rate limit exceeded")
	}

	handler, ok := b.handlers[inbound.Event]
	if !ok {
		log.Debug().Msg("unknown event")
		return b.fail(inbound.RequestID, core.ErrCodeUnknownEvent, fmt.Sprintf("unknown event %q", inbound.Event))
	}

	err := b.invoke(ctx, handler, inbound)
	if err == nil {
		return nil
	}

	code, msg := classify(err)
	if code == core.ErrCodeInternal {
		log.Error().Err(err).Msg("event handler failed")
	} else {
		log.Debug().Err(err).Str("code", code).Msg("event rejected")
	}
	return b.fail(inbound.RequestID, code, msg)
}

func (b *Binding) invoke(ctx context.Context, handler eventHandler, inbound proto.Inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, inbound.RequestID, inbound.Data)
}

func (b *Binding) fail(requestID, code, msg string) error {
	return b.router.emitter.Emit(b.client, core.ErrorEvent(requestID, code, msg))
}

func (b *Binding) sendPrivateMessage(ctx context.Context, requestID string, data json.RawMessage) error {
	var payload proto.PrivateMessageData
	if err := b.decode(data, &payload); err != nil {
		return err
	}
	_, err := b.router.chat.SendPrivate(ctx, b.client, requestID, payload.TargetUserID, payload.Text, payload.Attachments)
	return err
}

func (b *Binding) sendGroupMessage(ctx context.Context, requestID string, data json.RawMessage) error {
	var payload proto.GroupMessageData
	if err := b.decode(data, &payload); err != nil {
		return err
	}
	_, err := b.router.chat.SendGroup(ctx, b.client, requestID, payload.GroupID, payload.Text, payload.Attachments)
	return err
}

func (b *Binding) getChatHistory(ctx context.Context, requestID string, data json.RawMessage) error {
	target, err := b.decodeTarget(data)
	if err != nil {
		return err
	}
	_, err = b.router.chat.History(ctx, b.client, requestID, target, chat.KindDirect)
	return err
}

func (b *Binding) getGroupChat(ctx context.Context, requestID string, data json.RawMessage) error {
	target, err := b.decodeTarget(data)
	if err != nil {
		return err
	}
	_, err = b.router.chat.History(ctx, b.client, requestID, target, chat.KindGroup)
	return err
}

func (b *Binding) decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: data is required", errBadPayload)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %w", errBadPayload, err)
	}
	if err := b.router.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", errBadPayload, describeValidation(err))
	}
	return nil
}

func (b *Binding) decodeTarget(data json.RawMessage) (string, error) {
	var target string
	if err := json.Unmarshal(data, &target); err != nil {
		return "", fmt.Errorf("%w: expected a string id", errBadPayload)
	}
	if err := b.router.validate.Var(target, proto.TargetRule); err != nil {
		return "", fmt.Errorf("%w: invalid id", errBadPayload)
	}
	return target, nil
}

// messageContentRule rejects messages with neither text nor attachments.
// An empty attachments array counts as none.
func messageContentRule(sl validator.StructLevel) {
	msg, ok := sl.Current().Interface().(interface{ Content() (string, []string) })
	if !ok {
		return
	}
	if text, attachments := msg.Content(); text == "" && len(attachments) == 0 {
		sl.ReportError(text, "text", "Text", "required_without", "Attachments")
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(fields, "; ")
}

// classify maps an operation error to a client-facing code and message.
// Internal details are not exposed.
func classify(err error) (code, msg string) {
	switch {
	case errors.Is(err, errBadPayload):
		return core.ErrCodeBadRequest, err.Error()
	case errors.Is(err, chat.ErrInvalidTarget):
		return core.ErrCodeBadRequest, err.Error()
	case errors.Is(err, chat.ErrConversationNotFound):
		return core.ErrCodeConversationNotFound, err.Error()
	case errors.Is(err, chat.ErrNotMember):
		return core.ErrCodeNotMember, err.Error()
	default:
		return core.ErrCodeInternal, "internal server error"
	}
}
