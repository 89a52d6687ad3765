package collab

import (
	"sort"
	"time"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

// session is the runtime record of one connected socket.
type session struct {
	id          string
	user        types.User
	socket      interfaces.Socket
	rooms       map[string]struct{}
	connectedAt time.Time
}

// roomIDs returns the joined room IDs in sorted order.
func (s *session) roomIDs() []string {
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// sessionRegistry maps session IDs to sessions and keeps the explicit
// socket -> session ID side-table. Callers hold Manager.mu.
type sessionRegistry struct {
	byID     map[string]*session
	bySocket map[interfaces.Socket]string
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		byID:     make(map[string]*session),
		bySocket: make(map[interfaces.Socket]string),
	}
}

func (r *sessionRegistry) add(s *session) {
	r.byID[s.id] = s
	r.bySocket[s.socket] = s.id
}

func (r *sessionRegistry) get(id string) (*session, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// lookup recovers the session owning socket.
func (r *sessionRegistry) lookup(socket interfaces.Socket) (*session, bool) {
	if socket == nil {
		return nil, false
	}
	id, ok := r.bySocket[socket]
	if !ok {
		return nil, false
	}
	return r.get(id)
}

// remove is idempotent.
func (r *sessionRegistry) remove(s *session) {
	delete(r.byID, s.id)
	if id, ok := r.bySocket[s.socket]; ok && id == s.id {
		delete(r.bySocket, s.socket)
	}
}

func (r *sessionRegistry) len() int {
	return len(r.byID)
}
