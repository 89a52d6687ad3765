package websocket

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Registry tracks upgraded connections so shutdown can close them.
// http.Server.Shutdown does not touch hijacked connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Connection]struct{}
	users map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[*Connection]struct{}),
		users: make(map[string]int),
	}
}

func (r *Registry) Register(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn]; ok {
		return
	}
	r.conns[conn] = struct{}{}
	r.users[conn.userID]++
}

// Unregister is idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn]; !ok {
		return
	}
	delete(r.conns, conn)
	if r.users[conn.userID]--; r.users[conn.userID] <= 0 {
		delete(r.users, conn.userID)
	}
}

// Stats reports open connections and distinct users.
func (r *Registry) Stats() (connections, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns), len(r.users)
}

// CloseAll closes every tracked connection concurrently. Each read loop
// notices the close and disconnects its session.
func (r *Registry) CloseAll() error {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(32)
	for _, c := range conns {
		c := c
		g.Go(c.Close)
	}
	return g.Wait()
}
