package types

import (
	"encoding/json"
	"time"
)

// Inbound message types accepted by the router.
const (
	MessageTypeJoinRoom        = "join_room"
	MessageTypeLeaveRoom       = "leave_room"
	MessageTypeCursorMove      = "cursor_move"
	MessageTypeTextChange      = "text_change"
	MessageTypeWhiteboardDraw  = "whiteboard_draw"
	MessageTypeChatMessage     = "chat_message"
	MessageTypeTypingIndicator = "typing_indicator"
)

// Outbound envelope types. These strings are part of the wire protocol
// and must not change.
const (
	EventConnected        = "connected"
	EventRoomJoined       = "room_joined"
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventCursorUpdate     = "cursor_update"
	EventContentUpdate    = "content_update"
	EventWhiteboardUpdate = "whiteboard_update"
	EventChatMessage      = "chat_message"
	EventTypingUpdate     = "typing_update"
	EventError            = "error"
)

// Error codes carried in the data of an "error" envelope.
const (
	ErrorCodeSessionNotFound = "session_not_found"
	ErrorCodeInvalidRequest  = "invalid_request"
	ErrorCodeTenantMismatch  = "tenant_mismatch"
	ErrorCodeInvalidMessage  = "invalid_message"
	ErrorCodeRateLimited     = "rate_limited"
)

// RoomType is the kind of resource a room is attached to.
type RoomType string

const (
	RoomTypeCourse     RoomType = "course"
	RoomTypeStudyGroup RoomType = "studygroup"
	RoomTypeWhiteboard RoomType = "whiteboard"
	RoomTypeAssessment RoomType = "assessment"
)

// RoomTypes lists every room type in a stable order.
var RoomTypes = []RoomType{
	RoomTypeCourse,
	RoomTypeStudyGroup,
	RoomTypeWhiteboard,
	RoomTypeAssessment,
}

// User is the authenticated identity attached to a connection.
// It is resolved by the directory before the collaboration core sees it
// and is never mutated afterwards.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Role            string `json:"role"`
	EstablishmentID string `json:"establishmentId"`
}

// InboundMessage is a frame received from a client.
type InboundMessage struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Envelope is a frame sent to a client.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Participant describes one member of a room as seen by clients.
type Participant struct {
	User     User      `json:"user"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Inbound payloads. Opaque client state (cursor positions, edit operations,
// draw data) stays as raw JSON and is relayed byte for byte.

type JoinRoomData struct {
	RoomID     string   `json:"roomId"`
	RoomType   RoomType `json:"roomType"`
	ResourceID string   `json:"resourceId"`
}

type LeaveRoomData struct {
	RoomID string `json:"roomId"`
}

type CursorMoveData struct {
	Position json.RawMessage `json:"position"`
}

type TextChangeData struct {
	Operation json.RawMessage `json:"operation"`
	Content   json.RawMessage `json:"content"`
}

type WhiteboardDrawData struct {
	DrawData json.RawMessage `json:"drawData"`
}

type ChatMessageData struct {
	Message string `json:"message"`
}

type TypingIndicatorData struct {
	IsTyping bool `json:"isTyping"`
}

// Outbound payloads.

type ConnectedData struct {
	SessionID string `json:"sessionId"`
	User      User   `json:"user"`
}

type RoomJoinedData struct {
	RoomID       string        `json:"roomId"`
	RoomType     RoomType      `json:"roomType"`
	ResourceID   string        `json:"resourceId"`
	Participants []Participant `json:"participants"`
}

// PresenceData is the payload of user_joined and user_left.
type PresenceData struct {
	RoomID            string    `json:"roomId"`
	User              User      `json:"user"`
	Timestamp         time.Time `json:"timestamp"`
	TotalParticipants int       `json:"totalParticipants"`
}

type CursorUpdateData struct {
	RoomID     string          `json:"roomId"`
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName"`
	Position   json.RawMessage `json:"position"`
	Timestamp  time.Time       `json:"timestamp"`
}

type ContentUpdateData struct {
	RoomID     string          `json:"roomId"`
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName"`
	Operation  json.RawMessage `json:"operation"`
	Content    json.RawMessage `json:"content"`
	Timestamp  time.Time       `json:"timestamp"`
}

type WhiteboardUpdateData struct {
	RoomID     string          `json:"roomId"`
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName"`
	DrawData   json.RawMessage `json:"drawData"`
	Timestamp  time.Time       `json:"timestamp"`
}

type ChatMessageEventData struct {
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

type TypingUpdateData struct {
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	IsTyping   bool      `json:"isTyping"`
	Timestamp  time.Time `json:"timestamp"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RoomSnapshot is a read-only view of one room.
type RoomSnapshot struct {
	ID               string        `json:"id"`
	Type             RoomType      `json:"type"`
	ResourceID       string        `json:"resourceId"`
	EstablishmentID  string        `json:"establishmentId"`
	ParticipantCount int           `json:"participantCount"`
	LastActivity     time.Time     `json:"lastActivity"`
	Participants     []Participant `json:"participants"`
}

// SystemSnapshot summarises the live state of the collaboration core.
type SystemSnapshot struct {
	ActiveSessions int              `json:"activeSessions"`
	ActiveRooms    int              `json:"activeRooms"`
	RoomsByType    map[RoomType]int `json:"roomsByType"`
}
