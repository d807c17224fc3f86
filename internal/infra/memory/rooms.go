package memory

import (
	"sync"

	"zetaduel-service/internal/app"
	"zetaduel-service/internal/domain"
)

// Rooms is an in-process broadcast grouping of participant channels.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]app.Channel
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[string]app.Channel)}
}

func (r *Rooms) Join(room, participantID string, ch app.Channel) {
	if ch == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]app.Channel)
		r.rooms[room] = members
	}
	members[participantID] = ch
}

func (r *Rooms) Leave(room, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, participantID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Broadcast delivers msg to every member. Channels are snapshotted so sends happen
// without holding the lock.
func (r *Rooms) Broadcast(room string, msg domain.Message) {
	r.mu.RLock()
	members := make([]app.Channel, 0, len(r.rooms[room]))
	for _, ch := range r.rooms[room] {
		members = append(members, ch)
	}
	r.mu.RUnlock()

	for _, ch := range members {
		ch.Send(msg)
	}
}

// Size returns the number of members in a room.
func (r *Rooms) Size(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
