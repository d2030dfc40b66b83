package relay_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robomsg/relay/internal/relay"
)

const testGrace = 40 * time.Millisecond

func newTestRegistry(t *testing.T) *relay.Registry {
	t.Helper()
	r := relay.NewRegistry(testGrace, nil)
	t.Cleanup(r.Stop)
	return r
}

func TestRegisterAndLookups(t *testing.T) {
	r := newTestRegistry(t)

	u := r.Register("conn-1", "alice", "http://example.com/a.png")
	assert.Equal(t, relay.StatusOnline, u.Status)
	assert.Equal(t, "alice", u.Username)

	byConn, ok := r.LookupByConnection("conn-1")
	require.True(t, ok)
	assert.Equal(t, u, byConn)

	byName, ok := r.LookupByUsername("alice")
	require.True(t, ok)
	assert.Equal(t, u, byName)

	_, ok = r.LookupByConnection("conn-2")
	assert.False(t, ok)
	_, ok = r.LookupByUsername("bob")
	assert.False(t, ok)
}

func TestRegisterDefaultsAvatarFromUsername(t *testing.T) {
	r := newTestRegistry(t)

	u := r.Register("conn-1", "alice smith", "")
	assert.Equal(t, "https://ui-avatars.com/api/?name=alice+smith&background=random", u.Avatar)
}

func TestLookupByUsernamePrefersMostRecentRegistration(t *testing.T) {
	r := newTestRegistry(t)

	r.Register("conn-1", "alice", "")
	r.Register("conn-2", "alice", "")

	u, ok := r.LookupByUsername("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-2", u.ConnectionID)
}

func TestMarkOfflineEvictsAfterGrace(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("conn-1", "alice", "")

	u, ok := r.MarkOffline("conn-1")
	require.True(t, ok)
	assert.Equal(t, relay.StatusOffline, u.Status)

	// Still present inside the grace window.
	_, ok = r.LookupByConnection("conn-1")
	assert.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := r.LookupByConnection("conn-1")
		return !ok
	}, 10*testGrace, testGrace/4)

	_, ok = r.LookupByUsername("alice")
	assert.False(t, ok)
}

func TestReloginSameConnectionCancelsEviction(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("conn-1", "alice", "")
	r.MarkOffline("conn-1")

	r.Register("conn-1", "alice", "")

	time.Sleep(3 * testGrace)
	u, ok := r.LookupByConnection("conn-1")
	require.True(t, ok)
	assert.Equal(t, relay.StatusOnline, u.Status)
}

func TestReloginSameUsernameReplacesStaleRecord(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("conn-1", "alice", "")
	r.MarkOffline("conn-1")

	r.Register("conn-2", "alice", "")

	// The stale record is gone immediately, not via the timer.
	_, ok := r.LookupByConnection("conn-1")
	assert.False(t, ok)

	time.Sleep(3 * testGrace)
	u, ok := r.LookupByUsername("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-2", u.ConnectionID)
	assert.Equal(t, relay.StatusOnline, u.Status)
}

func TestEvictRechecksStatusAtFireTime(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("conn-1", "alice", "")
	r.MarkOffline("conn-1")

	// Simulate a raced timer firing after the user came back.
	r.Register("conn-1", "alice", "")
	r.Evict("conn-1")

	_, ok := r.LookupByConnection("conn-1")
	assert.True(t, ok)
}

func TestOnlineUsersExcludesCallerAndOffline(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("conn-1", "alice", "")
	r.Register("conn-2", "bob", "")
	r.Register("conn-3", "carol", "")
	r.MarkOffline("conn-3")

	users := r.OnlineUsers("conn-1")
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{"bob"}, names)
}

func TestUpdateStatus(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("conn-1", "alice", "")

	u, ok := r.UpdateStatus("conn-1", relay.StatusOffline)
	require.True(t, ok)
	assert.Equal(t, relay.StatusOffline, u.Status)

	_, ok = r.UpdateStatus("conn-9", relay.StatusOnline)
	assert.False(t, ok)
}
