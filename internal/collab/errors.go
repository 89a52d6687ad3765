package collab

import (
	"github.com/cockroachdb/errors"

	"liveroom/pkg/types"
)

// Decoding errors for inbound payloads. They never cross the package
// boundary; the router turns them into "error" envelopes.
var (
	ErrMissingRoomID   = errors.New("roomId is required")
	ErrRoomIDTooLong   = errors.Newf("roomId exceeds %d bytes", types.MaxRoomIDLength)
	ErrInvalidRoomType = errors.New("roomType must be one of course, studygroup, whiteboard, assessment")
	ErrMalformedData   = errors.New("message data does not match its type")
)

// Reasons reported to the Observer when a frame is not delivered.
const (
	dropReasonUnknownType  = "unknown_type"
	dropReasonRoomNotFound = "room_not_found"
	dropReasonNotMember    = "not_member"
	dropReasonSendFailed   = "send_failed"
	dropReasonEncode       = "encode_failed"
)
