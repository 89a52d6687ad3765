package collab

import (
	"encoding/json"

	"go.uber.org/zap"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

func encode(eventType string, data interface{}) ([]byte, error) {
	return json.Marshal(types.Envelope{Type: eventType, Data: data})
}

// send delivers one envelope to a single socket.
func (m *Manager) send(socket interfaces.Socket, eventType string, data interface{}) bool {
	frame, err := encode(eventType, data)
	if err != nil {
		m.logger.Error("failed to encode envelope", zap.String("type", eventType), zap.Error(err))
		m.observer.MessageDropped(dropReasonEncode)
		return false
	}
	return m.sendIfOpen(socket, frame)
}

// sendIfOpen never blocks. A closed socket or a full buffer loses the frame.
func (m *Manager) sendIfOpen(socket interfaces.Socket, frame []byte) bool {
	if socket == nil || !socket.IsOpen() {
		return false
	}
	if err := socket.Send(frame); err != nil {
		m.logger.Debug("frame not delivered", zap.Error(err))
		m.observer.MessageDropped(dropReasonSendFailed)
		return false
	}
	return true
}

// broadcast encodes the envelope once and hands it to every participant of r
// except exclude. It returns the number of sockets that accepted the frame.
func (m *Manager) broadcast(r *room, exclude, eventType string, data interface{}) int {
	if len(r.participants) == 0 {
		return 0
	}
	frame, err := encode(eventType, data)
	if err != nil {
		m.logger.Error("failed to encode broadcast",
			zap.String("type", eventType),
			zap.String("room_id", r.id),
			zap.Error(err))
		m.observer.MessageDropped(dropReasonEncode)
		return 0
	}

	delivered := 0
	for sessionID, p := range r.participants {
		if sessionID == exclude {
			continue
		}
		if m.sendIfOpen(p.socket, frame) {
			delivered++
		}
	}
	return delivered
}

func (m *Manager) sendError(socket interfaces.Socket, code, message string) {
	m.send(socket, types.EventError, types.ErrorData{Code: code, Message: message})
}
