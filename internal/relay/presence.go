package relay

import (
	"github.com/samber/lo"
)

// EmitFunc delivers one outbound event to one connection. Implementations
// must not block; delivery is best-effort.
type EmitFunc func(connID, event string, data any)

// Broadcaster translates registry transitions into outbound presence events.
// It only reads registry state and emits; it never mutates anything.
type Broadcaster struct {
	registry *Registry
	emit     EmitFunc
}

// NewBroadcaster wires a broadcaster to a registry and an emit function.
func NewBroadcaster(registry *Registry, emit EmitFunc) *Broadcaster {
	return &Broadcaster{registry: registry, emit: emit}
}

// Login announces a fresh login: everyone else online learns about the new
// user, and the new user alone receives the current online roster.
func (b *Broadcaster) Login(u User) {
	others := b.registry.OnlineUsers(u.ConnectionID)
	for _, other := range others {
		b.emit(other.ConnectionID, EventUserConnected, u.Summary())
	}
	roster := lo.Map(others, func(o User, _ int) UserSummary { return o.Summary() })
	b.emit(u.ConnectionID, EventUserList, roster)
}

// StatusChange announces a presence transition to every other online user.
func (b *Broadcaster) StatusChange(u User) {
	payload := StatusChangedPayload{Username: u.Username, Status: u.Status}
	for _, other := range b.registry.OnlineUsers(u.ConnectionID) {
		b.emit(other.ConnectionID, EventUserStatusChanged, payload)
	}
}

// Disconnect announces that a user's connection closed. This fires at
// disconnect time, not at eviction time.
func (b *Broadcaster) Disconnect(u User) {
	payload := UserDisconnectedPayload{Username: u.Username}
	for _, other := range b.registry.OnlineUsers(u.ConnectionID) {
		b.emit(other.ConnectionID, EventUserDisconnected, payload)
	}
}
