// Package collab implements the in-memory collaboration core: a session
// registry, a room table and the routing logic that turns one inbound
// event into zero or more outbound frames.
//
// Every public method runs to completion under a single mutex, so room
// mutations and the broadcasts they cause are observed by participants in
// the order the events were handled.
package collab

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

// Manager owns the session registry and the room table. External code only
// reaches them through its methods.
type Manager struct {
	mu       sync.Mutex
	sessions *sessionRegistry
	rooms    *roomTable

	logger        *zap.Logger
	observer      Observer
	now           func() time.Time
	newID         func() (string, error)
	enforceTenant bool
}

var (
	_ interfaces.Collaboration = (*Manager)(nil)
	_ interfaces.Introspector  = (*Manager)(nil)
)

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(m *Manager) {
		if observer != nil {
			m.observer = observer
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTenantEnforcement controls whether a user may join a room created by
// a user of another establishment. Enforcement is on by default.
func WithTenantEnforcement(enforce bool) Option {
	return func(m *Manager) {
		m.enforceTenant = enforce
	}
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions:      newSessionRegistry(),
		rooms:         newRoomTable(),
		logger:        zap.NewNop(),
		observer:      nopObserver{},
		now:           time.Now,
		newID:         newSessionID,
		enforceTenant: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// newSessionID returns a UUIDv7: a millisecond timestamp prefix followed
// by random bits.
func newSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errors.Wrap(err, "generate session id")
	}
	return id.String(), nil
}

// Connect registers a new session for socket and acknowledges it with a
// "connected" frame. Connecting an already registered socket returns its
// existing session ID.
func (m *Manager) Connect(socket interfaces.Socket, user *types.User) (string, error) {
	if socket == nil || user == nil {
		return "", errors.Wrap(interfaces.ErrInvalidArgument, "connect requires a socket and a user")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions.lookup(socket); ok {
		m.send(socket, types.EventConnected, types.ConnectedData{SessionID: existing.id, User: existing.user})
		return existing.id, nil
	}

	s := &session{
		id:          m.nextSessionIDLocked(),
		user:        *user,
		socket:      socket,
		rooms:       make(map[string]struct{}),
		connectedAt: m.now(),
	}
	m.sessions.add(s)
	m.observer.SessionOpened()

	m.logger.Info("session connected",
		zap.String("session_id", s.id),
		zap.String("user_id", s.user.ID),
		zap.String("establishment_id", s.user.EstablishmentID))

	m.send(socket, types.EventConnected, types.ConnectedData{SessionID: s.id, User: s.user})
	return s.id, nil
}

// nextSessionIDLocked regenerates until the ID is not held by a live session.
func (m *Manager) nextSessionIDLocked() string {
	for {
		id, err := m.newID()
		if err != nil {
			m.logger.Warn("session id generator failed, falling back to random uuid", zap.Error(err))
			id = uuid.NewString()
		}
		if _, taken := m.sessions.get(id); !taken {
			return id
		}
		m.logger.Warn("session id collision, regenerating", zap.String("session_id", id))
	}
}

// Disconnect leaves every room the socket's session occupies and removes the
// session. Unknown sockets are ignored, so repeated calls are safe.
func (m *Manager) Disconnect(socket interfaces.Socket) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.lookup(socket)
	if !ok {
		return
	}

	for _, roomID := range s.roomIDs() {
		m.leaveLocked(s, roomID)
	}
	m.sessions.remove(s)
	m.observer.SessionClosed()

	m.logger.Info("session disconnected",
		zap.String("session_id", s.id),
		zap.String("user_id", s.user.ID),
		zap.Duration("duration", m.now().Sub(s.connectedAt)))
}
