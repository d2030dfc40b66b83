package relay

import (
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a user's presence as observed by the registry.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// DefaultEvictionGrace is how long a disconnected user's record is retained
// before eviction, absorbing brief reconnects.
const DefaultEvictionGrace = 300 * time.Second

// User binds a display identity to a live connection. One User exists per
// connection; a username may linger on a stale offline record during the
// grace window after its connection closed.
type User struct {
	ConnectionID string
	Username     string
	Avatar       string
	Status       Status
}

// Summary projects the user into its public presence shape.
func (u User) Summary() UserSummary {
	return UserSummary{Username: u.Username, Avatar: u.Avatar}
}

// DefaultAvatar derives a deterministic avatar reference for users that log
// in without one.
func DefaultAvatar(username string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(username) + "&background=random"
}

// Registry owns the connection↔user mapping and presence state. All access
// goes through its methods; the maps are never shared. A username→connection
// secondary index is maintained alongside the primary map so reverse lookups
// never scan.
type Registry struct {
	mu     sync.Mutex
	grace  time.Duration
	byConn map[string]*User
	byName map[string]string
	timers map[string]*time.Timer
	log    *zap.Logger
}

// NewRegistry creates a registry whose offline records are evicted after the
// given grace window. A non-positive grace falls back to the default.
func NewRegistry(grace time.Duration, log *zap.Logger) *Registry {
	if grace <= 0 {
		grace = DefaultEvictionGrace
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		grace:  grace,
		byConn: make(map[string]*User),
		byName: make(map[string]string),
		timers: make(map[string]*time.Timer),
		log:    log,
	}
}

// Register binds a username to a connection and marks it online. It never
// fails: an already-online username under another connection is left alone
// (last writer wins for future lookups), while a stale offline record for the
// same username is removed immediately along with its eviction timer.
func (r *Registry) Register(connID, username, avatar string) User {
	if avatar == "" {
		avatar = DefaultAvatar(username)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelTimer(connID)

	if prevID, ok := r.byName[username]; ok && prevID != connID {
		if prev, ok := r.byConn[prevID]; ok && prev.Status == StatusOffline {
			r.cancelTimer(prevID)
			delete(r.byConn, prevID)
			r.log.Debug("replaced stale offline record",
				zap.String("username", username),
				zap.String("conn", prevID))
		}
	}

	u := &User{
		ConnectionID: connID,
		Username:     username,
		Avatar:       avatar,
		Status:       StatusOnline,
	}
	r.byConn[connID] = u
	r.byName[username] = connID
	return *u
}

// LookupByConnection returns the user bound to a connection, if any.
func (r *Registry) LookupByConnection(connID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byConn[connID]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// LookupByUsername returns the most recently registered user for a username,
// preferring an online one if the indexed record has already gone offline.
func (r *Registry) LookupByUsername(username string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	connID, ok := r.byName[username]
	if !ok {
		return User{}, false
	}
	u, ok := r.byConn[connID]
	if !ok {
		return User{}, false
	}
	if u.Status == StatusOffline {
		for _, other := range r.byConn {
			if other.Username == username && other.Status == StatusOnline {
				return *other, true
			}
		}
	}
	return *u, true
}

// UpdateStatus sets a user's presence and reports the updated user.
func (r *Registry) UpdateStatus(connID string, status Status) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byConn[connID]
	if !ok {
		return User{}, false
	}
	u.Status = status
	return *u, true
}

// MarkOffline flips the user offline and schedules eviction after the grace
// window. The timer re-checks status when it fires, so a reconnect on the
// same connection id in the interim wins the race.
func (r *Registry) MarkOffline(connID string) (User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byConn[connID]
	if !ok {
		return User{}, false
	}
	u.Status = StatusOffline

	r.cancelTimer(connID)
	r.timers[connID] = time.AfterFunc(r.grace, func() {
		r.Evict(connID)
	})
	return *u, true
}

// Evict removes a record if, and only if, it is still offline now. Status is
// re-checked at fire time rather than trusted from schedule time.
func (r *Registry) Evict(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.timers, connID)
	u, ok := r.byConn[connID]
	if !ok || u.Status != StatusOffline {
		return
	}
	delete(r.byConn, connID)
	if r.byName[u.Username] == connID {
		delete(r.byName, u.Username)
	}
	r.log.Debug("evicted offline user",
		zap.String("username", u.Username),
		zap.String("conn", connID))
}

// OnlineUsers returns every online user except the given connection.
func (r *Registry) OnlineUsers(exceptConnID string) []User {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]User, 0, len(r.byConn))
	for id, u := range r.byConn {
		if id == exceptConnID || u.Status != StatusOnline {
			continue
		}
		users = append(users, *u)
	}
	return users
}

// Stop cancels all pending eviction timers. Used on shutdown.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

func (r *Registry) cancelTimer(connID string) {
	if t, ok := r.timers[connID]; ok {
		t.Stop()
		delete(r.timers, connID)
	}
}
