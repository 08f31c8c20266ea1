// Package presence tracks which connections each user currently has open.
package presence

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

// Notifier observes online/offline transitions of a user.
// Online fires when the first connection registers, Offline when the last
// one goes away.
type Notifier interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

const notifyTimeout = 2 * time.Second

// Registry maps user ids to the ordered set of their open connection ids.
// A key exists only while at least one connection is present. Updates for
// the same user are serialized per key, together with the notification
// they trigger, so a user's transitions are published in the order they
// happened. Different users never contend.
type Registry struct {
	users    *xsync.MapOf[string, []string]
	gates    *xsync.MapOf[string, *userGate]
	notifier Notifier
	log      *zerolog.Logger
}

// userGate serializes one user's updates. It lives in gates while refs > 0.
type userGate struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry builds an empty registry. notifier may be nil.
func NewRegistry(notifier Notifier, logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		users:    xsync.NewMapOf[string, []string](),
		gates:    xsync.NewMapOf[string, *userGate](),
		notifier: notifier,
		log:      logger,
	}
}

// Register appends connID to the user's set. Registering the same id twice
// is a no-op.
func (r *Registry) Register(userID, connID string) {
	unlock := r.lock(userID)
	defer unlock()

	firstTab := false
	r.users.Compute(userID, func(conns []string, loaded bool) ([]string, bool) {
		if slices.Contains(conns, connID) {
			return conns, false
		}
		firstTab = !loaded
		// Stored slices are never mutated in place so Load callers get a stable view.
		next := make([]string, len(conns), len(conns)+1)
		copy(next, conns)
		return append(next, connID), false
	})

	if firstTab {
		r.log.Debug().Str("user_id", userID).Msg("user online")
		r.notify(userID, true)
	}
}

// Unregister removes connID from the user's set and returns how many
// connections remain. When none remain the user's key is deleted.
func (r *Registry) Unregister(userID, connID string) int {
	unlock := r.lock(userID)
	defer unlock()

	remaining := 0
	wentOffline := false
	r.users.Compute(userID, func(conns []string, loaded bool) ([]string, bool) {
		if !loaded {
			return nil, true
		}
		next := make([]string, 0, len(conns))
		for _, id := range conns {
			if id != connID {
				next = append(next, id)
			}
		}
		remaining = len(next)
		if remaining == 0 {
			wentOffline = true
			return nil, true
		}
		return next, false
	})

	if wentOffline {
		r.log.Debug().Str("user_id", userID).Msg("user fully disconnected")
		r.notify(userID, false)
	}
	return remaining
}

// Connections returns a copy of the user's connection ids in registration order.
func (r *Registry) Connections(userID string) []string {
	conns, ok := r.users.Load(userID)
	if !ok {
		return nil
	}
	return slices.Clone(conns)
}

// Online reports whether the user has at least one open connection.
func (r *Registry) Online(userID string) bool {
	_, ok := r.users.Load(userID)
	return ok
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	return r.users.Size()
}

// lock acquires the user's gate and returns its release func.
func (r *Registry) lock(userID string) func() {
	g, _ := r.gates.Compute(userID, func(g *userGate, loaded bool) (*userGate, bool) {
		if !loaded {
			g = &userGate{}
		}
		g.refs++
		return g, false
	})
	g.mu.Lock()

	return func() {
		g.mu.Unlock()
		r.gates.Compute(userID, func(g *userGate, _ bool) (*userGate, bool) {
			g.refs--
			return g, g.refs == 0
		})
	}
}

func (r *Registry) notify(userID string, online bool) {
	if r.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	var err error
	if online {
		err = r.notifier.Online(ctx, userID)
	} else {
		err = r.notifier.Offline(ctx, userID)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("user_id", userID).Bool("online", online).Msg("presence notify failed")
	}
}
