// Package relay implements the core of the messenger: it tracks live
// connections and their users, maps user pairs to deterministic rooms, keeps
// per-room message history, and fans events out to the right connections.
package relay

import (
	"encoding/json"
	"time"
)

// Event names accepted from clients.
const (
	EventLogin        = "login"
	EventStartChat    = "startChat"
	EventSendMessage  = "sendMessage"
	EventTyping       = "typing"
	EventUpdateStatus = "updateStatus"
)

// Event names emitted to clients.
const (
	EventUserList          = "userList"
	EventUserConnected     = "userConnected"
	EventUserDisconnected  = "userDisconnected"
	EventUserStatusChanged = "userStatusChanged"
	EventChatStarted       = "chatStarted"
	EventMessageHistory    = "messageHistory"
	EventNewMessage        = "newMessage"
	EventUserTyping        = "userTyping"
	EventNotification      = "notification"
)

// Envelope is the wire frame carried in both directions: an event name plus
// an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// LoginPayload is sent by a client to bind a display identity to its
// connection. The username charset deliberately excludes the room-id
// separator so room ids stay unambiguous.
type LoginPayload struct {
	Username string `json:"username" validate:"required,min=1,max=32,username"`
	Avatar   string `json:"avatar" validate:"omitempty,max=512"`
}

// StartChatPayload opens (or re-opens) the pairwise room with another user.
type StartChatPayload struct {
	TargetUsername string `json:"targetUsername" validate:"required,min=1,max=32,username"`
}

// SendMessagePayload carries a chat message into a room.
type SendMessagePayload struct {
	RoomID string `json:"roomId" validate:"required"`
	Text   string `json:"text"`
}

// TypingPayload toggles the sender's typing indicator in a room.
type TypingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

// UpdateStatusPayload changes the sender's presence status.
type UpdateStatusPayload struct {
	Status Status `json:"status" validate:"required,oneof=online offline"`
}

// UserSummary is the public projection of a User used in presence events.
type UserSummary struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// ChatStartedPayload announces a room to both of its participants.
type ChatStartedPayload struct {
	RoomID       string   `json:"roomId"`
	Participants []string `json:"participants"`
}

// StatusChangedPayload announces a presence transition.
type StatusChangedPayload struct {
	Username string `json:"username"`
	Status   Status `json:"status"`
}

// UserTypingPayload relays a typing indicator to the other room members.
type UserTypingPayload struct {
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// NotificationPayload alerts a room participant about a new message, whether
// or not they are currently joined to the room.
type NotificationPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
	RoomID  string `json:"roomId"`
}

// UserDisconnectedPayload announces that a user's connection closed.
type UserDisconnectedPayload struct {
	Username string `json:"username"`
}

// Message is a single immutable chat message. The id is monotonically
// increasing across the whole store and doubles as the send instant in Unix
// milliseconds.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Encode marshals an outbound event envelope. Payloads are plain structs and
// slices, so a marshal failure indicates a programming error; callers treat
// an error as "nothing to send".
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
