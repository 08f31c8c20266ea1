package core

// Room groups clients subscribed to one conversation.
// It is owned by the hub goroutine and is not safe for concurrent use.
type Room struct {
	Name    string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Broadcast sends an event to all clients in the room and returns how many
// accepted it.
func (r *Room) Broadcast(event *Event) int {
	delivered := 0
	for client := range r.clients {
		if deliver(client, event) {
			delivered++
		}
	}
	return delivered
}

// Len returns the number of clients in the room.
func (r *Room) Len() int {
	return len(r.clients)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}

func deliver(c *Client, event *Event) bool {
	select {
	case c.Events <- event:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}
