package collab

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

// Route dispatches one inbound frame by its type. Unknown types are ignored
// so older servers tolerate newer clients.
func (m *Manager) Route(socket interfaces.Socket, msg *types.InboundMessage) {
	if msg == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !types.IsKnownMessageType(msg.Type) {
		m.logger.Debug("ignoring unknown message type", zap.String("type", msg.Type))
		m.observer.MessageDropped(dropReasonUnknownType)
		return
	}

	s, ok := m.sessions.lookup(socket)
	if !ok {
		m.sendError(socket, types.ErrorCodeSessionNotFound, "session not found")
		return
	}

	switch msg.Type {
	case types.MessageTypeJoinRoom:
		var data types.JoinRoomData
		if err := decodeData(msg.Data, &data); err != nil {
			m.rejectMalformed(s, msg, err)
			return
		}
		m.joinLocked(s, pickRoomID(msg.RoomID, data.RoomID), data.RoomType, data.ResourceID)

	case types.MessageTypeLeaveRoom:
		var data types.LeaveRoomData
		if err := decodeData(msg.Data, &data); err != nil {
			m.rejectMalformed(s, msg, err)
			return
		}
		m.leaveLocked(s, pickRoomID(msg.RoomID, data.RoomID))

	default:
		m.relayLocked(s, msg)
	}
}

// relayLocked rebroadcasts a relay-type event to every other participant of
// the message's room. A missing room or a sender outside the room is a
// silent no-op, checked before the payload is decoded.
func (m *Manager) relayLocked(s *session, msg *types.InboundMessage) {
	r, ok := m.rooms.get(msg.RoomID)
	if !ok {
		m.observer.MessageDropped(dropReasonRoomNotFound)
		return
	}
	if _, member := r.participants[s.id]; !member {
		m.logger.Debug("dropping relay from non-member",
			zap.String("room_id", msg.RoomID),
			zap.String("session_id", s.id),
			zap.String("type", msg.Type))
		m.observer.MessageDropped(dropReasonNotMember)
		return
	}

	now := m.now()
	eventType, payload, err := buildRelay(msg, s.user, now)
	if err != nil {
		m.rejectMalformed(s, msg, err)
		return
	}

	r.touch(now)
	delivered := m.broadcast(r, s.id, eventType, payload)
	m.observer.MessageRelayed(msg.Type, delivered)
}

// buildRelay maps a relay-type inbound message onto its outbound event.
func buildRelay(msg *types.InboundMessage, sender types.User, now time.Time) (string, interface{}, error) {
	switch msg.Type {
	case types.MessageTypeCursorMove:
		var in types.CursorMoveData
		if err := decodeData(msg.Data, &in); err != nil {
			return "", nil, err
		}
		return types.EventCursorUpdate, types.CursorUpdateData{
			RoomID:     msg.RoomID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			Position:   rawOrNull(in.Position),
			Timestamp:  now,
		}, nil

	case types.MessageTypeTextChange:
		var in types.TextChangeData
		if err := decodeData(msg.Data, &in); err != nil {
			return "", nil, err
		}
		return types.EventContentUpdate, types.ContentUpdateData{
			RoomID:     msg.RoomID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			Operation:  rawOrNull(in.Operation),
			Content:    rawOrNull(in.Content),
			Timestamp:  now,
		}, nil

	case types.MessageTypeWhiteboardDraw:
		var in types.WhiteboardDrawData
		if err := decodeData(msg.Data, &in); err != nil {
			return "", nil, err
		}
		return types.EventWhiteboardUpdate, types.WhiteboardUpdateData{
			RoomID:     msg.RoomID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			DrawData:   rawOrNull(in.DrawData),
			Timestamp:  now,
		}, nil

	case types.MessageTypeChatMessage:
		var in types.ChatMessageData
		if err := decodeData(msg.Data, &in); err != nil {
			return "", nil, err
		}
		return types.EventChatMessage, types.ChatMessageEventData{
			RoomID:     msg.RoomID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			Message:    in.Message,
			Timestamp:  now,
		}, nil

	case types.MessageTypeTypingIndicator:
		var in types.TypingIndicatorData
		if err := decodeData(msg.Data, &in); err != nil {
			return "", nil, err
		}
		return types.EventTypingUpdate, types.TypingUpdateData{
			RoomID:     msg.RoomID,
			SenderID:   sender.ID,
			SenderName: sender.Name,
			IsTyping:   in.IsTyping,
			Timestamp:  now,
		}, nil
	}
	return "", nil, errors.Newf("no relay mapping for %q", msg.Type)
}

func (m *Manager) rejectMalformed(s *session, msg *types.InboundMessage, err error) {
	m.logger.Debug("malformed message data",
		zap.String("session_id", s.id),
		zap.String("type", msg.Type),
		zap.Error(err))
	m.sendError(s.socket, types.ErrorCodeInvalidRequest, ErrMalformedData.Error())
}

// decodeData unmarshals raw into v. Absent or null data decodes to the zero
// value.
func decodeData(raw json.RawMessage, v interface{}) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return errors.Mark(errors.Wrap(err, "decode message data"), ErrMalformedData)
	}
	return nil
}

// pickRoomID prefers the envelope's roomId over the one inside data.
func pickRoomID(envelope, data string) string {
	if envelope != "" {
		return envelope
	}
	return data
}

// rawOrNull keeps absent opaque fields as an explicit JSON null.
func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
