package collab

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"liveroom/pkg/interfaces"
	"liveroom/pkg/types"
)

type participant struct {
	sessionID string
	user      types.User
	socket    interfaces.Socket
	joinedAt  time.Time
}

// room is created on first join and deleted when its last participant
// leaves. id, roomType, resourceID and establishmentID never change.
type room struct {
	id              string
	roomType        types.RoomType
	resourceID      string
	establishmentID string
	participants    map[string]*participant // sessionID -> participant
	lastActivity    time.Time
}

func (r *room) touch(now time.Time) {
	r.lastActivity = now
}

// participantList returns every participant except exclude, oldest first.
func (r *room) participantList(exclude string) []types.Participant {
	members := lo.Filter(lo.Values(r.participants), func(p *participant, _ int) bool {
		return p.sessionID != exclude
	})
	sort.Slice(members, func(i, j int) bool {
		if members[i].joinedAt.Equal(members[j].joinedAt) {
			return members[i].sessionID < members[j].sessionID
		}
		return members[i].joinedAt.Before(members[j].joinedAt)
	})
	return lo.Map(members, func(p *participant, _ int) types.Participant {
		return types.Participant{User: p.user, JoinedAt: p.joinedAt}
	})
}

func (r *room) snapshot() types.RoomSnapshot {
	return types.RoomSnapshot{
		ID:               r.id,
		Type:             r.roomType,
		ResourceID:       r.resourceID,
		EstablishmentID:  r.establishmentID,
		ParticipantCount: len(r.participants),
		LastActivity:     r.lastActivity,
		Participants:     r.participantList(""),
	}
}

// roomTable holds every live room. Callers hold Manager.mu.
type roomTable struct {
	rooms map[string]*room
}

func newRoomTable() *roomTable {
	return &roomTable{rooms: make(map[string]*room)}
}

func (t *roomTable) get(id string) (*room, bool) {
	r, ok := t.rooms[id]
	return r, ok
}

func (t *roomTable) create(id string, roomType types.RoomType, resourceID, establishmentID string, now time.Time) *room {
	r := &room{
		id:              id,
		roomType:        roomType,
		resourceID:      resourceID,
		establishmentID: establishmentID,
		participants:    make(map[string]*participant),
		lastActivity:    now,
	}
	t.rooms[id] = r
	return r
}

func (t *roomTable) delete(id string) {
	delete(t.rooms, id)
}

func (t *roomTable) len() int {
	return len(t.rooms)
}

// countByType always reports every room type, including empty ones.
func (t *roomTable) countByType() map[types.RoomType]int {
	counts := make(map[types.RoomType]int, len(types.RoomTypes))
	for _, rt := range types.RoomTypes {
		counts[rt] = 0
	}
	for _, r := range t.rooms {
		counts[r.roomType]++
	}
	return counts
}
