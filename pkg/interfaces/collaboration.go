package interfaces

import (
	"time"

	"liveroom/pkg/types"
)

// Collaboration is the lifecycle and routing surface of the collaboration
// core. Transports call Connect once per accepted connection, Route for every
// inbound frame and Disconnect once when the connection goes away.
type Collaboration interface {
	Connect(socket Socket, user *types.User) (string, error)
	Disconnect(socket Socket)
	Route(socket Socket, msg *types.InboundMessage)
}

// Introspector exposes read-only views of the collaboration state.
type Introspector interface {
	RoomSnapshot(roomID string) (*types.RoomSnapshot, bool)
	SystemSnapshot() types.SystemSnapshot
	StaleRooms(idle time.Duration) []types.RoomSnapshot
}
