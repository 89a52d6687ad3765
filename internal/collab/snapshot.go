package collab

import (
	"sort"
	"time"

	"liveroom/pkg/types"
)

// RoomSnapshot returns a copy of the room's state, or false if it does not
// exist.
func (m *Manager) RoomSnapshot(roomID string) (*types.RoomSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms.get(roomID)
	if !ok {
		return nil, false
	}
	snap := r.snapshot()
	return &snap, true
}

func (m *Manager) SystemSnapshot() types.SystemSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return types.SystemSnapshot{
		ActiveSessions: m.sessions.len(),
		ActiveRooms:    m.rooms.len(),
		RoomsByType:    m.rooms.countByType(),
	}
}

// StaleRooms lists rooms with no activity for at least idle, oldest first.
// Nothing is removed.
func (m *Manager) StaleRooms(idle time.Duration) []types.RoomSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-idle)
	var stale []types.RoomSnapshot
	for _, r := range m.rooms.rooms {
		if !r.lastActivity.After(cutoff) {
			stale = append(stale, r.snapshot())
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].LastActivity.Equal(stale[j].LastActivity) {
			return stale[i].ID < stale[j].ID
		}
		return stale[i].LastActivity.Before(stale[j].LastActivity)
	})
	return stale
}
