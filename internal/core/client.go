package core

// Identity is the authenticated user attached to a connection at handshake.
type Identity struct {
	UserID    string
	FirstName string
	LastName  string
}

// Client is one live connection as seen by the core layer.
// Its identity is fixed at construction and never changes.
type Client struct {
	ID       string
	Identity Identity
	Events   chan *Event
}

// NewClient constructs a client with an initialized outbound buffer.
func NewClient(id string, identity Identity) *Client {
	return &Client{
		ID:       id,
		Identity: identity,
		Events:   make(chan *Event, 32),
	}
}

// UserID is a shortcut for c.Identity.UserID.
func (c *Client) UserID() string {
	return c.Identity.UserID
}
