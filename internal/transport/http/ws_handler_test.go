package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/proto"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.server.Client().Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)

	expired, err := auth.GenerateToken(&auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      -time.Minute,
	}, "u1", "A", "B")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	forged, err := auth.GenerateToken(&auth.JWTConfig{Secret: []byte("other"), TTL: time.Hour}, "u1", "A", "B")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := map[string]string{
		"missing":  "",
		"garbage":  "Bearer not-a-token",
		"expired":  "Bearer " + expired,
		"forged":   "Bearer " + forged,
		"no shape": expired,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/ws", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			resp, err := env.server.Client().Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
			body, _ := io.ReadAll(resp.Body)
			var msg ErrorResponse
			if err := json.Unmarshal(body, &msg); err != nil || msg.Message == "" {
				t.Fatalf("expected {message}, got %s", body)
			}
		})
	}

	// A real websocket client sees the same refusal.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, env.wsURL()+"?token="+expired, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}

	if n := env.presence.Len(); n != 0 {
		t.Fatalf("rejected handshakes must not register presence, got %d users", n)
	}
}

func TestWebSocketConnectedEvent(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + env.token(t, "u1")}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	ev := readEvent(t, conn, proto.EventConnected)
	var data proto.ConnectedData
	decodeData(t, ev, &data)
	if data.User.ID != "u1" || data.User.FirstName != "First-u1" || data.User.LastName != "Last-u1" {
		t.Fatalf("unexpected connected payload: %+v", data)
	}

	if conns := env.presence.Connections("u1"); len(conns) != 1 {
		t.Fatalf("expected exactly one connection for u1, got %v", conns)
	}
	mustNoFrame(t, conn)
}

func TestPrivateMessageAndHistory(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.dial(t, "u1")
	u2 := env.dial(t, "u2")

	// u2 opens the conversation first so it is joined to the room.
	send(t, u2, proto.EventGetChatHistory, "h0", "u1")
	ev := readEvent(t, u2, proto.EventChatHistory)
	var empty []proto.MessageData
	decodeData(t, ev, &empty)
	if ev.RequestID != "h0" || len(empty) != 0 {
		t.Fatalf("unexpected initial history: %s (%s)", ev.Data, ev.RequestID)
	}

	send(t, u1, proto.EventSendPrivateMessage, "s1", proto.PrivateMessageData{Text: "hi", TargetUserID: "u2"})

	var fromU1, fromU2 proto.MessageData
	decodeData(t, readEvent(t, u1, proto.EventMessageSent), &fromU1)
	decodeData(t, readEvent(t, u2, proto.EventMessageSent), &fromU2)
	for _, msg := range []proto.MessageData{fromU1, fromU2} {
		if msg.Text != "hi" || msg.SenderID != "u1" || msg.ConversationID == "" {
			t.Fatalf("unexpected message-sent payload: %+v", msg)
		}
		if msg.Attachments == nil {
			t.Fatal("attachments must serialize as []")
		}
	}
	if fromU1.ID != fromU2.ID {
		t.Fatalf("both sides must see the same message, got %s and %s", fromU1.ID, fromU2.ID)
	}

	send(t, u2, proto.EventGetChatHistory, "h1", "u1")
	ev = readEvent(t, u2, proto.EventChatHistory)
	var history []proto.MessageData
	decodeData(t, ev, &history)
	if ev.RequestID != "h1" || len(history) != 1 {
		t.Fatalf("expected one message for h1, got %d (%s)", len(history), ev.RequestID)
	}
	if history[0].Text != "hi" || history[0].SenderID != "u1" || history[0].ConversationID != fromU1.ConversationID {
		t.Fatalf("unexpected history entry: %+v", history[0])
	}
}

func TestGroupChatOverWebSocket(t *testing.T) {
	env := newTestEnv(t)
	group, err := env.store.CreateGroupConversation(context.Background(), "team", []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	u1 := env.dial(t, "u1")
	u2 := env.dial(t, "u2")
	outsider := env.dial(t, "u3")

	send(t, u2, proto.EventGetGroupChat, "g0", group.ID)
	readEvent(t, u2, proto.EventGroupChatHistory)

	send(t, u1, proto.EventSendGroupMessage, "g1", proto.GroupMessageData{Text: "hello team", GroupID: group.ID})
	var msg proto.MessageData
	decodeData(t, readEvent(t, u2, proto.EventMessageSent), &msg)
	if msg.Text != "hello team" || msg.ConversationID != group.ID {
		t.Fatalf("unexpected group message: %+v", msg)
	}

	send(t, outsider, proto.EventGetGroupChat, "g2", group.ID)
	ev := readEvent(t, outsider, proto.EventServerError)
	var errData proto.ErrorData
	decodeData(t, ev, &errData)
	if errData.Code != core.ErrCodeNotMember || ev.RequestID != "g2" {
		t.Fatalf("expected not_member for g2, got %+v (%s)", errData, ev.RequestID)
	}
}

func TestSendToMissingGroupReportsError(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.dial(t, "u1")

	send(t, u1, proto.EventSendGroupMessage, "r9", proto.GroupMessageData{Text: "anyone?", GroupID: "does-not-exist"})

	ev := readEvent(t, u1, proto.EventServerError)
	var errData proto.ErrorData
	decodeData(t, ev, &errData)
	if errData.Code != core.ErrCodeConversationNotFound || ev.RequestID != "r9" {
		t.Fatalf("unexpected error: %+v (%s)", errData, ev.RequestID)
	}

	msgs, err := env.store.ListMessages(context.Background(), "does-not-exist")
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected nothing persisted, got %d: %v", len(msgs), err)
	}
	mustNoFrame(t, u1)
}

func TestMalformedEventsKeepConnectionOpen(t *testing.T) {
	env := newTestEnv(t)
	u1 := env.dial(t, "u1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := u1.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var errData proto.ErrorData
	decodeData(t, readEvent(t, u1, proto.EventServerError), &errData)
	if errData.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", errData)
	}

	send(t, u1, "join-room", "x1", "general")
	ev := readEvent(t, u1, proto.EventServerError)
	decodeData(t, ev, &errData)
	if errData.Code != core.ErrCodeUnknownEvent || ev.RequestID != "x1" {
		t.Fatalf("expected unknown_event for x1, got %+v (%s)", errData, ev.RequestID)
	}

	send(t, u1, proto.EventSendPrivateMessage, "x2", map[string]any{"text": "no target"})
	ev = readEvent(t, u1, proto.EventServerError)
	decodeData(t, ev, &errData)
	if errData.Code != core.ErrCodeBadRequest || ev.RequestID != "x2" {
		t.Fatalf("expected bad_request for x2, got %+v (%s)", errData, ev.RequestID)
	}

	send(t, u1, proto.EventSendPrivateMessage, "x3", proto.PrivateMessageData{Text: "self", TargetUserID: "u1"})
	ev = readEvent(t, u1, proto.EventServerError)
	decodeData(t, ev, &errData)
	if errData.Code != core.ErrCodeBadRequest || ev.RequestID != "x3" {
		t.Fatalf("expected bad_request for x3, got %+v (%s)", errData, ev.RequestID)
	}

	// Still usable afterwards.
	send(t, u1, proto.EventGetChatHistory, "x4", "u2")
	if ev := readEvent(t, u1, proto.EventChatHistory); ev.RequestID != "x4" {
		t.Fatalf("expected history for x4, got %s", ev.RequestID)
	}
}

func TestDisconnectUpdatesPresence(t *testing.T) {
	env := newTestEnv(t)
	tab1 := env.dial(t, "u1")
	tab2 := env.dial(t, "u1")

	if conns := env.presence.Connections("u1"); len(conns) != 2 {
		t.Fatalf("expected two tabs, got %v", conns)
	}

	_ = tab1.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, "one tab left", func() bool { return len(env.presence.Connections("u1")) == 1 })
	if !env.presence.Online("u1") {
		t.Fatal("u1 must stay online with one tab open")
	}

	_ = tab2.Close(websocket.StatusNormalClosure, "bye")
	waitFor(t, "u1 offline", func() bool { return !env.presence.Online("u1") })
	if n := env.presence.Len(); n != 0 {
		t.Fatalf("expected empty registry, got %d users", n)
	}
}

func TestWebSocketOriginPolicy(t *testing.T) {
	env := newConfiguredTestEnv(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"https://app.example.com"}
	})
	url := env.wsURL() + "?token=" + env.token(t, "u1")

	dialFrom := func(origin string) (*websocket.Conn, *http.Response, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{origin}},
		})
	}

	conn, _, err := dialFrom("https://app.example.com")
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	readEvent(t, conn, proto.EventConnected)
	_ = conn.CloseNow()

	_, resp, err := dialFrom("https://evil.example.com")
	if err == nil {
		t.Fatal("expected foreign origin to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}

func TestAcceptOptionsFromAllowedOrigins(t *testing.T) {
	if opts := acceptOptions([]string{"*"}); !opts.InsecureSkipVerify {
		t.Fatalf("expected any origin to be accepted, got %+v", opts)
	}

	opts := acceptOptions([]string{"https://app.example.com", "http://localhost:5173", "*.example.org"})
	if opts.InsecureSkipVerify {
		t.Fatal("origin checks must stay on")
	}
	want := []string{"app.example.com", "localhost:5173", "*.example.org"}
	if len(opts.OriginPatterns) != len(want) {
		t.Fatalf("expected %v, got %v", want, opts.OriginPatterns)
	}
	for i := range want {
		if opts.OriginPatterns[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, opts.OriginPatterns)
		}
	}

	if opts := acceptOptions(nil); opts.InsecureSkipVerify || len(opts.OriginPatterns) != 0 {
		t.Fatalf("expected same-origin only, got %+v", opts)
	}
}
