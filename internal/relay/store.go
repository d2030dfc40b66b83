package relay

import (
	"sync"
	"time"
)

// Store keeps the append-only message log for every room, in memory for the
// lifetime of the process. Ids increase monotonically across all rooms and
// track the wall clock in milliseconds, matching the send instant.
type Store struct {
	mu      sync.Mutex
	logs    map[string][]Message
	lastID  int64
	perRoom int
	now     func() time.Time
}

// NewStore creates a message store. perRoomLimit caps how many messages are
// retained per room; zero means unbounded.
func NewStore(perRoomLimit int) *Store {
	return &Store{
		logs:    make(map[string][]Message),
		perRoom: perRoomLimit,
		now:     time.Now,
	}
}

// Append assigns the next id and timestamp, appends the message to the room's
// log, and returns the stored message.
func (s *Store) Append(roomID, sender, text string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	m := Message{
		ID:        id,
		RoomID:    roomID,
		Sender:    sender,
		Text:      text,
		Timestamp: now,
	}
	log := append(s.logs[roomID], m)
	if s.perRoom > 0 && len(log) > s.perRoom {
		log = log[len(log)-s.perRoom:]
	}
	s.logs[roomID] = log
	return m
}

// History returns the room's full log, oldest first. A room with no messages
// yields an empty slice, not nil, so it serializes as [].
func (s *Store) History(roomID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[roomID]
	out := make([]Message, len(log))
	copy(out, log)
	return out
}
