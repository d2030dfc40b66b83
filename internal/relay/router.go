package relay

import (
	"encoding/json"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Peer is the outbound half of a live connection. Send must never block: it
// reports false when the payload could not be queued (buffer full or
// connection closed), and the router treats that as a dropped delivery.
type Peer interface {
	ID() string
	Send(payload []byte) bool
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// Router is the single entry point for inbound events. It validates session
// state, orchestrates the registry, room directory, and message store, and
// fans resulting events out to the affected connections.
//
// A connection is Anonymous until a valid login binds a user to it, then
// Authenticated until Detach. Events arriving out of state, malformed, or
// referencing rooms the sender never joined are dropped without failing the
// connection.
type Router struct {
	mu    sync.RWMutex
	peers map[string]Peer

	registry *Registry
	rooms    *Directory
	store    *Store
	presence *Broadcaster
	validate *validator.Validate
	log      *zap.Logger
}

// NewRouter wires a router over the given core services.
func NewRouter(registry *Registry, rooms *Directory, store *Store, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})

	r := &Router{
		peers:    make(map[string]Peer),
		registry: registry,
		rooms:    rooms,
		store:    store,
		validate: v,
		log:      log,
	}
	r.presence = NewBroadcaster(registry, r.emit)
	return r
}

// Attach registers a connection's outbound side with the router. The
// connection starts Anonymous.
func (r *Router) Attach(p Peer) {
	r.mu.Lock()
	r.peers[p.ID()] = p
	r.mu.Unlock()
}

// Detach handles a transport-level close: the user (if any) goes offline with
// a scheduled eviction, other users learn about the disconnect, and the
// connection leaves all of its rooms.
func (r *Router) Detach(connID string) {
	r.mu.Lock()
	delete(r.peers, connID)
	r.mu.Unlock()

	if u, ok := r.registry.MarkOffline(connID); ok {
		r.presence.Disconnect(u)
	}
	r.rooms.Leave(connID)
}

// HandleEvent processes one inbound frame from a connection. Events from the
// same connection are handled in arrival order because each connection's read
// loop calls this serially.
func (r *Router) HandleEvent(connID string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.log.Debug("dropping malformed frame", zap.String("conn", connID), zap.Error(err))
		return
	}

	switch env.Event {
	case EventLogin:
		r.handleLogin(connID, env.Data)
	case EventStartChat:
		r.handleStartChat(connID, env.Data)
	case EventSendMessage:
		r.handleSendMessage(connID, env.Data)
	case EventTyping:
		r.handleTyping(connID, env.Data)
	case EventUpdateStatus:
		r.handleUpdateStatus(connID, env.Data)
	default:
		r.log.Debug("dropping unknown event",
			zap.String("conn", connID), zap.String("event", env.Event))
	}
}

func (r *Router) handleLogin(connID string, data json.RawMessage) {
	if _, ok := r.registry.LookupByConnection(connID); ok {
		r.log.Debug("login on authenticated connection", zap.String("conn", connID))
		return
	}
	p, ok := decode[LoginPayload](r, connID, data)
	if !ok {
		return
	}
	u := r.registry.Register(connID, p.Username, p.Avatar)
	r.presence.Login(u)
	r.log.Info("user logged in",
		zap.String("username", u.Username), zap.String("conn", connID))
}

func (r *Router) handleStartChat(connID string, data json.RawMessage) {
	self, ok := r.authenticated(connID)
	if !ok {
		return
	}
	p, ok := decode[StartChatPayload](r, connID, data)
	if !ok {
		return
	}

	roomID := r.rooms.Open(self.Username, p.TargetUsername)
	r.rooms.Join(connID, roomID)

	if target, ok := r.registry.LookupByUsername(p.TargetUsername); ok &&
		target.Status == StatusOnline && r.hasPeer(target.ConnectionID) {
		r.rooms.Join(target.ConnectionID, roomID)

		started := ChatStartedPayload{
			RoomID:       roomID,
			Participants: []string{self.Username, p.TargetUsername},
		}
		r.emit(connID, EventChatStarted, started)
		// A chat with yourself resolves to your own connection; one
		// announcement is enough.
		if target.ConnectionID != connID {
			r.emit(target.ConnectionID, EventChatStarted, started)
		}
	}

	r.emit(connID, EventMessageHistory, r.store.History(roomID))
}

func (r *Router) handleSendMessage(connID string, data json.RawMessage) {
	self, ok := r.authenticated(connID)
	if !ok {
		return
	}
	p, ok := decode[SendMessagePayload](r, connID, data)
	if !ok || p.Text == "" {
		return
	}
	if !r.rooms.IsMember(connID, p.RoomID) {
		r.log.Debug("message for unjoined room",
			zap.String("conn", connID), zap.String("room", p.RoomID))
		return
	}
	r.PostMessage(p.RoomID, self.Username, p.Text)
}

// PostMessage appends a message and fans it out: newMessage to every current
// room member, and a notification to each other participant of the room,
// looked up by username regardless of current membership. The REST surface
// and the realtime sendMessage event both go through here so the two
// interfaces observe one consistent log.
func (r *Router) PostMessage(roomID, sender, text string) (Message, bool) {
	if text == "" {
		return Message{}, false
	}
	m := r.store.Append(roomID, sender, text)

	for _, memberID := range r.rooms.MembersOf(roomID) {
		r.emit(memberID, EventNewMessage, m)
	}

	if pair, ok := r.rooms.Participants(roomID); ok {
		note := NotificationPayload{From: sender, Message: text, RoomID: roomID}
		for _, username := range pair {
			if username == sender {
				continue
			}
			// No status filter: a participant who set themselves away still
			// has a live connection and still gets the alert. A truly gone
			// connection no-ops at emit's peer lookup.
			if target, ok := r.registry.LookupByUsername(username); ok {
				r.emit(target.ConnectionID, EventNotification, note)
			}
		}
	}
	return m, true
}

func (r *Router) handleTyping(connID string, data json.RawMessage) {
	self, ok := r.authenticated(connID)
	if !ok {
		return
	}
	p, ok := decode[TypingPayload](r, connID, data)
	if !ok {
		return
	}
	if !r.rooms.IsMember(connID, p.RoomID) {
		return
	}
	payload := UserTypingPayload{Username: self.Username, IsTyping: p.IsTyping}
	for _, memberID := range r.rooms.MembersOf(p.RoomID) {
		if memberID == connID {
			continue
		}
		r.emit(memberID, EventUserTyping, payload)
	}
}

func (r *Router) handleUpdateStatus(connID string, data json.RawMessage) {
	if _, ok := r.authenticated(connID); !ok {
		return
	}
	p, ok := decode[UpdateStatusPayload](r, connID, data)
	if !ok {
		return
	}
	if u, ok := r.registry.UpdateStatus(connID, p.Status); ok {
		r.presence.StatusChange(u)
	}
}

// authenticated resolves the user bound to a connection, if any.
func (r *Router) authenticated(connID string) (User, bool) {
	u, ok := r.registry.LookupByConnection(connID)
	if !ok {
		r.log.Debug("event from anonymous connection", zap.String("conn", connID))
	}
	return u, ok
}

func (r *Router) hasPeer(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.peers[connID]
	return ok
}

// emit serializes one event for one connection. Failures are contained to the
// recipient: a full buffer or closed connection only costs that connection
// the event.
func (r *Router) emit(connID, event string, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		r.log.Error("encode outbound event", zap.String("event", event), zap.Error(err))
		return
	}

	r.mu.RLock()
	p, ok := r.peers[connID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if !p.Send(payload) {
		r.log.Debug("dropped event for slow or closed connection",
			zap.String("conn", connID), zap.String("event", event))
	}
}

// decode unmarshals and validates an event payload, dropping it on failure.
func decode[T any](r *Router, connID string, raw json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		r.log.Debug("dropping malformed payload", zap.String("conn", connID), zap.Error(err))
		return v, false
	}
	if err := r.validate.Struct(v); err != nil {
		r.log.Debug("dropping invalid payload", zap.String("conn", connID), zap.Error(err))
		return v, false
	}
	return v, true
}
