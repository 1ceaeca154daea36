package memory

import (
	"sync"

	"github.com/roomcall/roomcall/model"
)

// MemStore is the in-memory room registry: membership plus append-only
// ordered history per room. Rooms are created on first join or first append
// and never evicted.
type MemStore struct {
	mx *sync.Mutex
	db map[string]*model.Room
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx: &sync.Mutex{},
		db: make(map[string]*model.Room),
	}
}

func (ms *MemStore) room(roomID string) *model.Room {
	room, ok := ms.db[roomID]
	if !ok {
		room = &model.Room{
			ID:      roomID,
			Members: make(map[string]model.Participant),
		}
		ms.db[roomID] = room
	}
	return room
}

// Join adds the participant to the room's member set. Joining twice is a
// no-op; membership and history are unchanged relative to a single join.
func (ms *MemStore) Join(roomID, participantID string) *model.Room {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room := ms.room(roomID)
	room.Members[participantID] = model.Participant{ID: participantID}
	return room
}

// GetHistory returns the room's full ordered history. An unknown room is
// simply empty, never an error.
func (ms *MemStore) GetHistory(roomID string) []model.Message {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return []model.Message{}
	}
	out := make([]model.Message, len(room.Messages))
	copy(out, room.Messages)
	return out
}

// AppendMessage appends to the room's history in arrival order. The stored
// message is immutable from this point on.
func (ms *MemStore) AppendMessage(roomID string, msg model.Message) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room := ms.room(roomID)
	room.Messages = append(room.Messages, msg)
}

// Members returns the current member IDs of a room, empty for unknown rooms.
func (ms *MemStore) Members(roomID string) []string {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	room, ok := ms.db[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(room.Members))
	for id := range room.Members {
		ids = append(ids, id)
	}
	return ids
}
