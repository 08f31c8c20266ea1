package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/proto"
)

// WSHandler authenticates handshakes, upgrades them and bridges the socket
// to a core.Client.
type WSHandler struct {
	auth            *Authenticator
	router          *EventRouter
	accept          *websocket.AcceptOptions
	maxMessageBytes int64
	log             *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. Cross-origin handshakes are
// accepted from allowedOrigins only; a single "*" allows any origin.
func NewWSHandler(authenticator *Authenticator, router *EventRouter, allowedOrigins []string, maxMessageBytes int64, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		auth:            authenticator,
		router:          router,
		accept:          acceptOptions(allowedOrigins),
		maxMessageBytes: maxMessageBytes,
		log:             logger,
	}
}

// acceptOptions turns configured origins into websocket host patterns.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	if len(origins) == 1 && origins[0] == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	identity, err := h.auth.Authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("ws handshake rejected")
		writeJSON(w, stdhttp.StatusUnauthorized, ErrorResponse{Message: "authentication error"})
		return
	}

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.maxMessageBytes > 0 {
		conn.SetReadLimit(h.maxMessageBytes)
	}

	client := core.NewClient(uuid.NewString(), identity)
	if err := h.auth.Admit(client); err != nil {
		h.log.Error().Err(err).Str("client_id", client.ID).Msg("admit client")
		conn.Close(websocket.StatusTryAgainLater, "server unavailable")
		return
	}
	defer h.auth.Disconnect(client)

	binding := h.router.Bind(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, binding, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	if errors.Is(err, core.ErrEventDropped) {
		h.log.Warn().Str("client_id", client.ID).Msg("client buffer full, closing")
		conn.Close(websocket.StatusTryAgainLater, "slow consumer")
		return
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop dispatches inbound events in arrival order.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, binding *Binding, client *core.Client) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if typ != websocket.MessageText || json.Unmarshal(data, &inbound) != nil || inbound.Event == "" {
			h.log.Debug().Str("client_id", client.ID).Msg("malformed inbound frame")
			if err := binding.fail("", core.ErrCodeBadRequest, "malformed event envelope"); err != nil {
				return err
			}
			continue
		}

		if err := binding.Dispatch(ctx, inbound); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeJSON(w stdhttp.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
