package chat

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/store"
	"github.com/vovakirdan/socialchat-server/internal/store/sqlite"
)

type testEnv struct {
	hub      *core.Hub
	store    store.Store
	resolver *Resolver
	service  *Service
}

func newTestEnv(t *testing.T, requireMembership bool) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	hub := core.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	resolver := NewResolver(st, hub, requireMembership, nil)
	return &testEnv{
		hub:      hub,
		store:    st,
		resolver: resolver,
		service:  NewService(resolver, st, hub, nil),
	}
}

func (e *testEnv) connect(t *testing.T, clientID, userID string) *core.Client {
	t.Helper()
	c := core.NewClient(clientID, core.Identity{UserID: userID})
	if err := e.hub.RegisterClient(c); err != nil {
		t.Fatalf("register client: %v", err)
	}
	return c
}

func (e *testEnv) roomSize(t *testing.T, room string) int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := e.hub.RoomSize(ctx, room)
	if err != nil {
		t.Fatalf("room size: %v", err)
	}
	return n
}

func mustEvent(t *testing.T, c *core.Client, kind core.EventKind) *core.Event {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events:
			if !ok {
				t.Fatalf("events closed before %v", kind)
			}
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("expected event %v for client %s", kind, c.ID)
			return nil
		}
	}
}

func mustNoEvent(t *testing.T, c *core.Client) {
	t.Helper()

	select {
	case ev := <-c.Events:
		t.Fatalf("unexpected event for client %s: %+v", c.ID, ev)
	case <-time.After(100 * time.Millisecond):
	}
}
