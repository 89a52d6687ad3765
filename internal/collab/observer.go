package collab

import "liveroom/pkg/types"

// Observer receives lifecycle notifications from the Manager. Calls are
// made while the manager lock is held, so implementations must not call
// back into the Manager.
type Observer interface {
	SessionOpened()
	SessionClosed()
	RoomCreated(roomType types.RoomType)
	RoomDeleted(roomType types.RoomType)
	MessageRelayed(msgType string, recipients int)
	MessageDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()             {}
func (nopObserver) SessionClosed()             {}
func (nopObserver) RoomCreated(types.RoomType) {}
func (nopObserver) RoomDeleted(types.RoomType) {}
func (nopObserver) MessageRelayed(string, int) {}
func (nopObserver) MessageDropped(string)      {}
