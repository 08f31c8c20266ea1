package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/presence"
	"github.com/vovakirdan/socialchat-server/internal/proto"
	"github.com/vovakirdan/socialchat-server/internal/service/chat"
	"github.com/vovakirdan/socialchat-server/internal/service/friends"
	"github.com/vovakirdan/socialchat-server/internal/store"
	"github.com/vovakirdan/socialchat-server/internal/store/sqlite"
)

const testSecret = "test-secret"

type testEnv struct {
	server   *httptest.Server
	store    store.Store
	auth     *auth.Service
	presence *presence.Registry
	jwt      *auth.JWTConfig
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newConfiguredTestEnv(t, nil)
}

func newConfiguredTestEnv(t *testing.T, configure func(*config.Config)) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	hub := core.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	registry := presence.NewRegistry(nil, &logger)
	resolver := chat.NewResolver(st, hub, true, &logger)
	chatService := chat.NewService(resolver, st, hub, &logger)

	cfg := config.Default()
	cfg.JWTSecret = testSecret
	if configure != nil {
		configure(&cfg)
	}

	server := NewServer(Services{
		Auth:          authService,
		Friends:       friends.New(st),
		Users:         st,
		Presence:      registry,
		Authenticator: NewAuthenticator(authService, registry, hub, &logger),
		Router:        NewEventRouter(chatService, hub, cfg.RateLimitPerMinute, &logger),
	}, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{
		server:   ts,
		store:    st,
		auth:     authService,
		presence: registry,
		jwt:      jwtConfig,
	}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(e.jwt, userID, "First-"+userID, "Last-"+userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + "/ws"
}

// dial opens an authenticated socket and consumes the connected event.
func (e *testEnv) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, e.wsURL()+"?token="+e.token(t, userID), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })

	ev := readEvent(t, conn, proto.EventConnected)
	var data proto.ConnectedData
	decodeData(t, ev, &data)
	if data.User.ID != userID {
		t.Fatalf("connected for %q, want %q", data.User.ID, userID)
	}
	return conn
}

type outbound struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func send(t *testing.T, conn *websocket.Conn, event, requestID string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: raw, RequestID: requestID}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readEvent reads frames until one named event arrives.
func readEvent(t *testing.T, conn *websocket.Conn, event string) outbound {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		var out outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if out.Event == event {
			return out
		}
	}
}

// mustNoFrame fails if anything arrives on conn within a short window.
func mustNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	var out outbound
	if err := wsjson.Read(ctx, conn, &out); err == nil {
		t.Fatalf("unexpected frame: %s %s", out.Event, out.Data)
	}
}

func decodeData(t *testing.T, out outbound, dst any) {
	t.Helper()
	if err := json.Unmarshal(out.Data, dst); err != nil {
		t.Fatalf("decode %s data %s: %v", out.Event, out.Data, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
