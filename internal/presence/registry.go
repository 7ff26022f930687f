// ABOUTME: In-memory presence registry mapping user ids to live connection handles
// ABOUTME: A reconnect supersedes the prior handle; stale disconnects are ignored

package presence

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// defaultBuffer is the per-connection event channel capacity.
const defaultBuffer = 64

// Event is a single server-to-client push delivered over a connection's
// stream. Type names the wire event; Data is its JSON-serializable payload.
type Event struct {
	Type string
	Data any
}

// Conn is one user's live connection handle. Events queued via Send are
// consumed by the transport goroutine reading Events. A superseded (stale)
// handle accepts no further events; its channel is closed so the transport
// can terminate.
type Conn struct {
	handle string
	userID string
	role   string

	mu     sync.Mutex
	closed bool
	events chan *Event
}

// UserID returns the identity this connection belongs to.
func (c *Conn) UserID() string { return c.userID }

// Role returns the role the identity connected with.
func (c *Conn) Role() string { return c.role }

// Handle returns the opaque id distinguishing this connection from any
// earlier or later connection by the same user.
func (c *Conn) Handle() string { return c.handle }

// Events returns the receive side of the connection's event stream. The
// channel is closed when the connection is superseded or deregistered.
func (c *Conn) Events() <-chan *Event { return c.events }

// Send queues an event for delivery. Non-blocking: returns false when the
// connection is stale or its buffer is full, in which case the event is
// dropped for this connection only.
func (c *Conn) Send(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// Registry tracks which users are currently reachable for realtime delivery,
// one connection per user.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	buffer int
	logger *slog.Logger
}

// NewRegistry creates a registry. buffer <= 0 selects the default
// per-connection event buffer. Pass nil logger for default.
func NewRegistry(buffer int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*Conn),
		buffer: buffer,
		logger: logger.With("component", "presence"),
	}
}

// Connect registers a new connection for userID and returns its handle.
// Any prior connection for the same user is superseded: it is closed and
// receives no further fan-out.
func (r *Registry) Connect(userID, role string) *Conn {
	conn := &Conn{
		handle: uuid.New().String(),
		userID: userID,
		role:   role,
		events: make(chan *Event, r.buffer),
	}

	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = conn
	total := len(r.conns)
	r.mu.Unlock()

	if prev != nil {
		prev.close()
		r.logger.Debug("superseded prior connection",
			"user_id", userID,
			"stale_handle", prev.handle,
		)
	}

	r.logger.Info("user connected",
		"user_id", userID,
		"role", role,
		"total_connected", total,
	)
	return conn
}

// Disconnect removes conn from the registry if and only if it is still the
// live handle for its user. A disconnect arriving after a reconnect is an
// expected race and is silently ignored.
func (r *Registry) Disconnect(conn *Conn) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	cur, ok := r.conns[conn.userID]
	if !ok || cur.handle != conn.handle {
		r.mu.Unlock()
		return
	}
	delete(r.conns, conn.userID)
	total := len(r.conns)
	r.mu.Unlock()

	conn.close()
	r.logger.Info("user disconnected",
		"user_id", conn.userID,
		"total_connected", total,
	)
}

// Lookup returns the live connection for userID. Absence is not an error:
// it means the user is offline and realtime delivery is skipped.
func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[userID]
	return conn, ok
}

// Connected returns the number of currently connected users.
func (r *Registry) Connected() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// Close shuts down the registry and closes all live connections.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for userID, conn := range r.conns {
		conns = append(conns, conn)
		delete(r.conns, userID)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
	r.logger.Debug("registry closed")
}
