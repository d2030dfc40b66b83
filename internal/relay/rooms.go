package relay

import (
	"sort"
	"strings"
	"sync"
)

// RoomSeparator joins the two sorted usernames into a room id. Usernames are
// validated at login to never contain it, so ids cannot collide across
// distinct pairs.
const RoomSeparator = "-"

// RoomID derives the deterministic id for the pairwise room between two
// usernames. Order-independent: RoomID(a, b) == RoomID(b, a).
func RoomID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, RoomSeparator)
}

// Directory tracks which connections are joined to which rooms, plus the
// authoritative participant pair for every room it has seen. Participants are
// recorded when a room is opened and never re-derived from the room id.
type Directory struct {
	mu           sync.Mutex
	members      map[string]map[string]struct{}
	rooms        map[string]map[string]struct{}
	participants map[string][2]string
}

// NewDirectory creates an empty room directory.
func NewDirectory() *Directory {
	return &Directory{
		members:      make(map[string]map[string]struct{}),
		rooms:        make(map[string]map[string]struct{}),
		participants: make(map[string][2]string),
	}
}

// Open resolves the room between two usernames, recording its participant
// pair, and returns its id. Reconnecting under the same username resolves to
// the same room.
func (d *Directory) Open(usernameA, usernameB string) string {
	id := RoomID(usernameA, usernameB)
	pair := [2]string{usernameA, usernameB}
	if pair[0] > pair[1] {
		pair[0], pair[1] = pair[1], pair[0]
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants[id] = pair
	return id
}

// Join adds a connection to a room's membership set. Idempotent.
func (d *Directory) Join(connID, roomID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.members[roomID] == nil {
		d.members[roomID] = make(map[string]struct{})
	}
	d.members[roomID][connID] = struct{}{}

	if d.rooms[connID] == nil {
		d.rooms[connID] = make(map[string]struct{})
	}
	d.rooms[connID][roomID] = struct{}{}
}

// IsMember reports whether a connection is currently joined to a room.
func (d *Directory) IsMember(connID, roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.members[roomID][connID]
	return ok
}

// MembersOf returns the connections currently joined to a room.
func (d *Directory) MembersOf(roomID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.members[roomID]))
	for id := range d.members[roomID] {
		ids = append(ids, id)
	}
	return ids
}

// RoomsOf returns the rooms a connection is joined to.
func (d *Directory) RoomsOf(connID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.rooms[connID]))
	for id := range d.rooms[connID] {
		ids = append(ids, id)
	}
	return ids
}

// Participants returns the username pair a room was opened for.
func (d *Directory) Participants(roomID string) ([2]string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pair, ok := d.participants[roomID]
	return pair, ok
}

// Leave removes a connection from every room it joined. Membership is
// per-connection, so this runs when the connection closes; the participant
// pair survives for notification targeting and reconnects.
func (d *Directory) Leave(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for roomID := range d.rooms[connID] {
		delete(d.members[roomID], connID)
		if len(d.members[roomID]) == 0 {
			delete(d.members, roomID)
		}
	}
	delete(d.rooms, connID)
}
