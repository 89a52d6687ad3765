package types

import (
	"regexp"
)

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@-]+$`)

// MaxRoomIDLength caps room IDs in bytes.
const MaxRoomIDLength = 256

const (
	maxUserIDLength = 64
	maxNameLength   = 200
)

// Validate checks a user descriptor before it enters the directory.
func (u *User) Validate() error {
	if !IsValidUserID(u.ID) {
		return ErrInvalidUserID
	}
	if len(u.Name) < 1 || len(u.Name) > maxNameLength {
		return ErrInvalidUserName
	}
	if u.Role == "" {
		return ErrInvalidRole
	}
	if u.EstablishmentID == "" {
		return ErrInvalidEstablishment
	}
	return nil
}

// IsValidUserID checks if a user ID meets format requirements.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > maxUserIDLength {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRoomID checks if a room ID is usable as a correlation key.
// Room IDs are opaque: any non-empty string up to MaxRoomIDLength bytes.
func IsValidRoomID(roomID string) bool {
	return roomID != "" && len(roomID) <= MaxRoomIDLength
}

// Valid reports whether t is one of the fixed room types.
func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeCourse, RoomTypeStudyGroup, RoomTypeWhiteboard, RoomTypeAssessment:
		return true
	default:
		return false
	}
}

// IsRelayType reports whether an inbound type is rebroadcast to a room
// rather than changing membership.
func IsRelayType(msgType string) bool {
	switch msgType {
	case MessageTypeCursorMove,
		MessageTypeTextChange,
		MessageTypeWhiteboardDraw,
		MessageTypeChatMessage,
		MessageTypeTypingIndicator:
		return true
	default:
		return false
	}
}

// IsKnownMessageType reports whether the router understands msgType.
func IsKnownMessageType(msgType string) bool {
	return msgType == MessageTypeJoinRoom || msgType == MessageTypeLeaveRoom || IsRelayType(msgType)
}
