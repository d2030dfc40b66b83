// Package integration exercises the assembled relay over real WebSocket
// connections: login/presence, chat setup, message fan-out, and the REST
// surface sharing the same log.
package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robomsg/relay/internal/relay"
	"github.com/robomsg/relay/internal/server"
)

const eventTimeout = 2 * time.Second

func deadlineSoon() time.Time {
	return time.Now().Add(eventTimeout)
}

func startRelay(t *testing.T, customize func(cfg *server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	if customize != nil {
		customize(&cfg)
	}

	srv := server.New(cfg, zap.NewNop())
	go srv.Hub().Run()

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(2 * time.Second)
	})
	return srv, ts
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, ts *httptest.Server, origin string) *wsClient {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(event string, payload any) {
	c.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(c.t, err)
	frame, err := json.Marshal(relay.Envelope{Event: event, Data: data})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

// expect reads frames until the named event arrives, failing on timeout.
// Unrelated events in between are skipped, which keeps tests robust against
// presence chatter from concurrently connected clients.
func (c *wsClient) expect(event string) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for {
		require.NoError(c.t, c.conn.SetReadDeadline(deadline))
		_, frame, err := c.conn.ReadMessage()
		require.NoError(c.t, err, "waiting for %q", event)

		var env relay.Envelope
		require.NoError(c.t, json.Unmarshal(frame, &env))
		if env.Event == event {
			return env.Data
		}
	}
}

func (c *wsClient) login(username string) json.RawMessage {
	c.t.Helper()
	c.send(relay.EventLogin, relay.LoginPayload{Username: username})
	return c.expect(relay.EventUserList)
}

func TestPresenceLifecycle(t *testing.T) {
	_, ts := startRelay(t, nil)

	alice := dial(t, ts, ts.URL)
	roster := alice.login("alice")
	assert.JSONEq(t, "[]", string(roster))

	bob := dial(t, ts, ts.URL)
	roster = bob.login("bob")

	var users []relay.UserSummary
	require.NoError(t, json.Unmarshal(roster, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	var connected relay.UserSummary
	require.NoError(t, json.Unmarshal(alice.expect(relay.EventUserConnected), &connected))
	assert.Equal(t, "bob", connected.Username)
	assert.NotEmpty(t, connected.Avatar)

	require.NoError(t, bob.conn.Close())

	var gone relay.UserDisconnectedPayload
	require.NoError(t, json.Unmarshal(alice.expect(relay.EventUserDisconnected), &gone))
	assert.Equal(t, "bob", gone.Username)
}

func TestChatFlowEndToEnd(t *testing.T) {
	_, ts := startRelay(t, nil)

	alice := dial(t, ts, ts.URL)
	alice.login("alice")
	bob := dial(t, ts, ts.URL)
	bob.login("bob")

	alice.send(relay.EventStartChat, relay.StartChatPayload{TargetUsername: "bob"})

	var startedA, startedB relay.ChatStartedPayload
	require.NoError(t, json.Unmarshal(alice.expect(relay.EventChatStarted), &startedA))
	require.NoError(t, json.Unmarshal(bob.expect(relay.EventChatStarted), &startedB))
	assert.Equal(t, startedA.RoomID, startedB.RoomID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, startedA.Participants)

	assert.JSONEq(t, "[]", string(alice.expect(relay.EventMessageHistory)))

	alice.send(relay.EventSendMessage, relay.SendMessagePayload{
		RoomID: startedA.RoomID,
		Text:   "hello bob",
	})

	var gotA, gotB relay.Message
	require.NoError(t, json.Unmarshal(alice.expect(relay.EventNewMessage), &gotA))
	require.NoError(t, json.Unmarshal(bob.expect(relay.EventNewMessage), &gotB))
	assert.Equal(t, gotA.ID, gotB.ID)
	assert.Equal(t, "hello bob", gotB.Text)
	assert.Equal(t, "alice", gotB.Sender)

	var note relay.NotificationPayload
	require.NoError(t, json.Unmarshal(bob.expect(relay.EventNotification), &note))
	assert.Equal(t, "alice", note.From)
	assert.Equal(t, "hello bob", note.Message)

	bob.send(relay.EventTyping, relay.TypingPayload{RoomID: startedA.RoomID, IsTyping: true})

	var typing relay.UserTypingPayload
	require.NoError(t, json.Unmarshal(alice.expect(relay.EventUserTyping), &typing))
	assert.Equal(t, "bob", typing.Username)
	assert.True(t, typing.IsTyping)
}

func TestRestAndRealtimeShareOneLog(t *testing.T) {
	_, ts := startRelay(t, nil)

	alice := dial(t, ts, ts.URL)
	alice.login("alice")
	bob := dial(t, ts, ts.URL)
	bob.login("bob")

	alice.send(relay.EventStartChat, relay.StartChatPayload{TargetUsername: "bob"})
	var started relay.ChatStartedPayload
	require.NoError(t, json.Unmarshal(alice.expect(relay.EventChatStarted), &started))
	bob.expect(relay.EventChatStarted)

	body := strings.NewReader(`{"roomId":"` + started.RoomID + `","sender":"alice","text":"via rest"}`)
	resp, err := http.Post(ts.URL+"/api/messages", "application/json", body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var delivered relay.Message
	require.NoError(t, json.Unmarshal(bob.expect(relay.EventNewMessage), &delivered))
	assert.Equal(t, "via rest", delivered.Text)

	histResp, err := http.Get(ts.URL + "/api/messages/" + started.RoomID)
	require.NoError(t, err)
	defer func() { _ = histResp.Body.Close() }()

	var history []relay.Message
	require.NoError(t, json.NewDecoder(histResp.Body).Decode(&history))
	require.Len(t, history, 1)
	assert.Equal(t, delivered.ID, history[0].ID)
}
