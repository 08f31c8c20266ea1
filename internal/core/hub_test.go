package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub()
	go hub.Run(ctx)
	return hub
}

func TestHubJoinBroadcastAndLeave(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", Identity{UserID: "u1", FirstName: "alice"})
	bob := NewClient("b", Identity{UserID: "u2", FirstName: "bob"})
	_ = hub.RegisterClient(alice)
	_ = hub.RegisterClient(bob)

	_ = hub.Join(alice, "conv-1")
	_ = hub.Join(bob, "conv-1")

	msg := &Message{ID: "m1", ConversationID: "conv-1", SenderID: "u1", Text: "hi"}
	_ = hub.Broadcast("conv-1", &Event{Kind: EventMessageSent, Message: msg})

	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventMessageSent)
		if ev.Message.Text != "hi" || ev.Message.SenderID != "u1" {
			t.Fatalf("unexpected message event: %+v", ev.Message)
		}
	}

	_ = hub.Leave(alice, "conv-1")
	_ = hub.Broadcast("conv-1", &Event{Kind: EventMessageSent, Message: msg})
	mustEvent(t, bob.Events, EventMessageSent)
	mustNoEvent(t, alice.Events)
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", Identity{UserID: "u1"})
	_ = hub.RegisterClient(alice)
	_ = hub.Join(alice, "conv-1")
	_ = hub.Join(alice, "conv-1")

	n, err := hub.RoomSize(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("room size: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 member, got %d", n)
	}

	_ = hub.Broadcast("conv-1", &Event{Kind: EventMessageSent, Message: &Message{Text: "once"}})
	mustEvent(t, alice.Events, EventMessageSent)
	mustNoEvent(t, alice.Events)
}

func TestHubEmitTargetsSingleClient(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", Identity{UserID: "u1"})
	alice2 := NewClient("a2", Identity{UserID: "u1"})
	_ = hub.RegisterClient(alice)
	_ = hub.RegisterClient(alice2)

	_ = hub.Emit(alice, &Event{Kind: EventChatHistory, RequestID: "r1"})
	ev := mustEvent(t, alice.Events, EventChatHistory)
	if ev.RequestID != "r1" {
		t.Fatalf("expected request id r1, got %q", ev.RequestID)
	}
	mustNoEvent(t, alice2.Events)
}

func TestHubEmitReportsDroppedEvents(t *testing.T) {
	hub := startHub(t)

	slow := NewClient("slow", Identity{UserID: "u1"})
	_ = hub.RegisterClient(slow)

	for i := range cap(slow.Events) {
		if err := hub.Emit(slow, &Event{Kind: EventChatHistory}); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	if err := hub.Emit(slow, &Event{Kind: EventError}); !errors.Is(err, ErrEventDropped) {
		t.Fatalf("expected ErrEventDropped for a full buffer, got %v", err)
	}

	gone := NewClient("gone", Identity{UserID: "u2"})
	if err := hub.Emit(gone, &Event{Kind: EventError}); !errors.Is(err, ErrEventDropped) {
		t.Fatalf("expected ErrEventDropped for an unknown client, got %v", err)
	}
}

func TestHubUnregisterLeavesRoomsAndClosesEvents(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("a", Identity{UserID: "u1"})
	_ = hub.RegisterClient(alice)
	_ = hub.Join(alice, "conv-1")
	_ = hub.UnregisterClient(alice)

	n, err := hub.RoomSize(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("room size: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty room, got %d", n)
	}

	select {
	case _, ok := <-alice.Events:
		if ok {
			t.Fatalf("expected closed events channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("events channel not closed")
	}

	// Late requests for the client are ignored rather than panicking.
	_ = hub.Join(alice, "conv-1")
	_ = hub.Emit(alice, &Event{Kind: EventError})
	flush(t, hub)
}

func TestHubBroadcastDropsForSlowConsumer(t *testing.T) {
	hub := startHub(t)

	slow := NewClient("slow", Identity{UserID: "u1"})
	fast := NewClient("fast", Identity{UserID: "u2"})
	_ = hub.RegisterClient(slow)
	_ = hub.RegisterClient(fast)
	_ = hub.Join(slow, "conv-1")
	_ = hub.Join(fast, "conv-1")

	total := cap(slow.Events) + 5
	received := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range fast.Events {
			received++
			if received == total {
				return
			}
		}
	}()

	for range total {
		_ = hub.Broadcast("conv-1", &Event{Kind: EventMessageSent, Message: &Message{Text: "x"}})
		flush(t, hub)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fast client received %d of %d", received, total)
	}
	if len(slow.Events) != cap(slow.Events) {
		t.Fatalf("expected slow buffer to be full, got %d", len(slow.Events))
	}
}

func TestHubStoppedRejectsRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	alice := NewClient("a", Identity{UserID: "u1"})
	_ = hub.RegisterClient(alice)
	flush(t, hub)

	cancel()
	<-stopped

	if err := hub.Join(alice, "conv-1"); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	if _, ok := <-alice.Events; ok {
		t.Fatalf("expected events closed on shutdown")
	}
}
