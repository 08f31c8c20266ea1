package core

import (
	"context"
)

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opJoin
	opLeave
	opEmit
	opBroadcast
	opRoomSize
)

type hubOp struct {
	kind   opKind
	client *Client
	room   string
	event  *Event
	reply  chan int
}

// Hub owns the broadcast rooms keyed by conversation id. All state is
// mutated by the Run goroutine; requests travel through a single FIFO queue,
// so a join submitted before a broadcast by the same caller is applied first.
// Only the hub writes to Client.Events, and it closes the channel on
// unregistration.
type Hub struct {
	ops  chan hubOp
	done chan struct{}

	clients map[*Client]map[string]struct{} // client -> joined rooms
	rooms   map[string]*Room
}

// NewHub creates a new chat hub instance. Call Run to start it.
func NewHub() *Hub {
	return &Hub{
		ops:     make(chan hubOp, 256),
		done:    make(chan struct{}),
		clients: make(map[*Client]map[string]struct{}),
		rooms:   make(map[string]*Room),
	}
}

// Run processes hub requests until ctx is cancelled. On exit every client's
// Events channel is closed so writers can wind down.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.Events)
		}
		h.clients = map[*Client]map[string]struct{}{}
		h.rooms = map[string]*Room{}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-h.ops:
			h.apply(op)
		}
	}
}

// RegisterClient makes the client eligible for joins and direct emits.
func (h *Hub) RegisterClient(c *Client) error {
	return h.submit(hubOp{kind: opRegister, client: c})
}

// UnregisterClient removes the client from every room and closes its Events.
func (h *Hub) UnregisterClient(c *Client) error {
	return h.submit(hubOp{kind: opUnregister, client: c})
}

// Join subscribes the client to a room. Joining twice is a no-op.
func (h *Hub) Join(c *Client, room string) error {
	return h.submit(hubOp{kind: opJoin, client: c, room: room})
}

// Leave unsubscribes the client from a room.
func (h *Hub) Leave(c *Client, room string) error {
	return h.submit(hubOp{kind: opLeave, client: c, room: room})
}

// Emit hands an event to a single client and waits for the hub to apply it.
// It returns ErrEventDropped when the client is not registered or its buffer
// is full.
func (h *Hub) Emit(c *Client, ev *Event) error {
	reply := make(chan int, 1)
	if err := h.submit(hubOp{kind: opEmit, client: c, event: ev, reply: reply}); err != nil {
		return err
	}
	select {
	case n := <-reply:
		if n == 0 {
			return ErrEventDropped
		}
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Broadcast queues an event for every client joined to room.
// Delivery is fire-and-forget; slow clients miss the event.
func (h *Hub) Broadcast(room string, ev *Event) error {
	return h.submit(hubOp{kind: opBroadcast, room: room, event: ev})
}

// RoomSize returns how many clients are joined to room once all previously
// queued requests have been applied.
func (h *Hub) RoomSize(ctx context.Context, room string) (int, error) {
	reply := make(chan int, 1)
	if err := h.submit(hubOp{kind: opRoomSize, room: room, reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-h.done:
		return 0, ErrHubStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (h *Hub) submit(op hubOp) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.ops <- op:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) apply(op hubOp) {
	switch op.kind {
	case opRegister:
		if _, ok := h.clients[op.client]; !ok {
			h.clients[op.client] = make(map[string]struct{})
		}
	case opUnregister:
		joined, ok := h.clients[op.client]
		if !ok {
			return
		}
		for name := range joined {
			h.removeFromRoom(op.client, name)
		}
		delete(h.clients, op.client)
		close(op.client.Events)
	case opJoin:
		joined, ok := h.clients[op.client]
		if !ok {
			return
		}
		room := h.rooms[op.room]
		if room == nil {
			room = NewRoom(op.room)
			h.rooms[op.room] = room
		}
		room.AddClient(op.client)
		joined[op.room] = struct{}{}
	case opLeave:
		if joined, ok := h.clients[op.client]; ok {
			delete(joined, op.room)
			h.removeFromRoom(op.client, op.room)
		}
	case opEmit:
		n := 0
		if _, ok := h.clients[op.client]; ok && deliver(op.client, op.event) {
			n = 1
		}
		op.reply <- n
	case opBroadcast:
		if room := h.rooms[op.room]; room != nil {
			room.Broadcast(op.event)
		}
	case opRoomSize:
		n := 0
		if room := h.rooms[op.room]; room != nil {
			n = room.Len()
		}
		op.reply <- n
	}
}

func (h *Hub) removeFromRoom(c *Client, name string) {
	room := h.rooms[name]
	if room == nil {
		return
	}
	room.RemoveClient(c)
	if room.Empty() {
		delete(h.rooms, name)
	}
}
