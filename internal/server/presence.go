package server

import (
	"sync"

	"github.com/coder/websocket"
)

// PresenceRegistry maps identity (email) to its open websocket. At most one
// connection per identity: a later connect for the same identity overwrites
// the earlier mapping, last-writer-wins. The displaced handle is not closed
// here; its own read loop notices the transport close and cleans up.
type PresenceRegistry struct {
	conns map[string]*websocket.Conn
	mu    sync.RWMutex
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		conns: make(map[string]*websocket.Conn),
	}
}

func (pr *PresenceRegistry) Register(email string, conn *websocket.Conn) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.conns[email] = conn
}

// Unregister removes the mapping for an identity. Idempotent.
func (pr *PresenceRegistry) Unregister(email string) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	delete(pr.conns, email)
}

// UnregisterConn removes the mapping only if it still points at conn.
// Used on disconnect so a stale connection's teardown cannot clobber a
// newer registration for the same identity.
func (pr *PresenceRegistry) UnregisterConn(email string, conn *websocket.Conn) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.conns[email] == conn {
		delete(pr.conns, email)
	}
}

// Lookup returns the connection for an identity, used for point-to-point
// notifications.
func (pr *PresenceRegistry) Lookup(email string) (*websocket.Conn, bool) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	conn, exists := pr.conns[email]
	return conn, exists
}

// All returns a snapshot of the currently open connections. Broadcasts
// iterate the snapshot so concurrent register/unregister cannot disturb the
// fan-out.
func (pr *PresenceRegistry) All() []*websocket.Conn {
	pr.mu.RLock()
	defer pr.mu.RUnlock()

	conns := make([]*websocket.Conn, 0, len(pr.conns))
	for _, conn := range pr.conns {
		conns = append(conns, conn)
	}
	return conns
}

func (pr *PresenceRegistry) Count() int {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return len(pr.conns)
}
