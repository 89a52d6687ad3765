package collab

import (
	"go.uber.org/zap"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

// JoinRoom adds the socket's session to roomID, creating the room on first
// use. The joiner receives "room_joined" with everyone already present and
// every other participant receives one "user_joined".
func (m *Manager) JoinRoom(socket interfaces.Socket, roomID string, roomType types.RoomType, resourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.lookup(socket)
	if !ok {
		m.sendError(socket, types.ErrorCodeSessionNotFound, "session not found")
		return
	}
	m.joinLocked(s, roomID, roomType, resourceID)
}

// LeaveRoom removes the socket's session from roomID. Leaving a room that
// does not exist, or one the session is not in, does nothing.
func (m *Manager) LeaveRoom(socket interfaces.Socket, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.lookup(socket)
	if !ok {
		m.sendError(socket, types.ErrorCodeSessionNotFound, "session not found")
		return
	}
	m.leaveLocked(s, roomID)
}

func (m *Manager) joinLocked(s *session, roomID string, roomType types.RoomType, resourceID string) {
	if !types.IsValidRoomID(roomID) {
		reason := ErrMissingRoomID
		if roomID != "" {
			reason = ErrRoomIDTooLong
		}
		m.sendError(s.socket, types.ErrorCodeInvalidRequest, reason.Error())
		return
	}

	now := m.now()
	log := m.logger.With(zap.String("room_id", roomID), zap.String("session_id", s.id))

	r, exists := m.rooms.get(roomID)
	switch {
	case !exists:
		if !roomType.Valid() {
			m.sendError(s.socket, types.ErrorCodeInvalidRequest, ErrInvalidRoomType.Error())
			return
		}
		r = m.rooms.create(roomID, roomType, resourceID, s.user.EstablishmentID, now)
		m.observer.RoomCreated(roomType)
		log.Debug("room created",
			zap.String("room_type", string(roomType)),
			zap.String("resource_id", resourceID))

	case r.establishmentID != s.user.EstablishmentID:
		if m.enforceTenant {
			log.Warn("cross-tenant join rejected",
				zap.String("room_establishment", r.establishmentID),
				zap.String("user_establishment", s.user.EstablishmentID))
			m.sendError(s.socket, types.ErrorCodeTenantMismatch, "room belongs to another establishment")
			return
		}
		log.Warn("cross-tenant join allowed",
			zap.String("room_establishment", r.establishmentID),
			zap.String("user_establishment", s.user.EstablishmentID))
	}

	joined := types.RoomJoinedData{
		RoomID:     r.id,
		RoomType:   r.roomType,
		ResourceID: r.resourceID,
	}

	if _, member := r.participants[s.id]; member {
		r.touch(now)
		joined.Participants = r.participantList(s.id)
		m.send(s.socket, types.EventRoomJoined, joined)
		return
	}

	r.participants[s.id] = &participant{
		sessionID: s.id,
		user:      s.user,
		socket:    s.socket,
		joinedAt:  now,
	}
	s.rooms[r.id] = struct{}{}
	r.touch(now)

	joined.Participants = r.participantList(s.id)
	m.send(s.socket, types.EventRoomJoined, joined)

	m.broadcast(r, s.id, types.EventUserJoined, types.PresenceData{
		RoomID:            r.id,
		User:              s.user,
		Timestamp:         now,
		TotalParticipants: len(r.participants),
	})

	log.Debug("session joined room", zap.Int("participants", len(r.participants)))
}

func (m *Manager) leaveLocked(s *session, roomID string) {
	r, exists := m.rooms.get(roomID)
	if !exists {
		delete(s.rooms, roomID)
		return
	}
	if _, member := r.participants[s.id]; !member {
		delete(s.rooms, roomID)
		return
	}

	now := m.now()
	delete(r.participants, s.id)
	delete(s.rooms, roomID)
	r.touch(now)

	m.broadcast(r, s.id, types.EventUserLeft, types.PresenceData{
		RoomID:            r.id,
		User:              s.user,
		Timestamp:         now,
		TotalParticipants: len(r.participants),
	})

	if len(r.participants) == 0 {
		m.rooms.delete(r.id)
		m.observer.RoomDeleted(r.roomType)
		m.logger.Debug("room deleted", zap.String("room_id", r.id))
		return
	}

	m.logger.Debug("session left room",
		zap.String("room_id", r.id),
		zap.String("session_id", s.id),
		zap.Int("participants", len(r.participants)))
}
