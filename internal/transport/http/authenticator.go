package http

import (
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/presence"
)

// ErrMissingToken is returned when a handshake carries no credential.
var ErrMissingToken = errors.New("missing token")

// TokenValidator verifies handshake credentials.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Authenticator gates websocket handshakes and tracks the lifecycle of
// admitted connections in the presence registry.
type Authenticator struct {
	tokens   TokenValidator
	presence *presence.Registry
	hub      *core.Hub
	log      *zerolog.Logger
}

// NewAuthenticator creates an authenticator.
func NewAuthenticator(tokens TokenValidator, registry *presence.Registry, hub *core.Hub, logger *zerolog.Logger) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		presence: registry,
		hub:      hub,
		log:      logger,
	}
}

// Authenticate extracts and verifies the credential of a handshake request.
// The token is read from "Authorization: Bearer <token>" or, for browsers
// that cannot set headers on websocket requests, the "token" query parameter.
func (a *Authenticator) Authenticate(r *stdhttp.Request) (core.Identity, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return core.Identity{}, ErrMissingToken
	}

	claims, err := a.tokens.ValidateToken(token)
	if err != nil {
		return core.Identity{}, err
	}

	return core.Identity{
		UserID:    claims.UserID,
		FirstName: claims.FirstName,
		LastName:  claims.LastName,
	}, nil
}

// Admit registers an authenticated client with the hub and the presence
// registry, then acknowledges the handshake to that client only.
func (a *Authenticator) Admit(c *core.Client) error {
	if err := a.hub.RegisterClient(c); err != nil {
		return fmt.Errorf("register client: %w", err)
	}
	a.presence.Register(c.UserID(), c.ID)

	identity := c.Identity
	if err := a.hub.Emit(c, &core.Event{Kind: core.EventConnected, User: &identity}); err != nil {
		a.Disconnect(c)
		return fmt.Errorf("emit connected: %w", err)
	}

	a.log.Info().
		Str("client_id", c.ID).
		Str("user_id", c.UserID()).
		Int("connections", len(a.presence.Connections(c.UserID()))).
		Msg("client connected")
	return nil
}

// Disconnect removes the client from presence and from every room. It is
// safe to call for clients that never completed authentication.
func (a *Authenticator) Disconnect(c *core.Client) {
	remaining := 0
	if c.UserID() != "" {
		remaining = a.presence.Unregister(c.UserID(), c.ID)
	}
	if err := a.hub.UnregisterClient(c); err != nil && !errors.Is(err, core.ErrHubStopped) {
		a.log.Warn().Err(err).Str("client_id", c.ID).Msg("unregister client")
	}

	a.log.Info().
		Str("client_id", c.ID).
		Str("user_id", c.UserID()).
		Int("remaining", remaining).
		Msg("client disconnected")
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
