package integration

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/robomsg/relay/internal/server"
)

func TestGracefulShutdownClosesClients(t *testing.T) {
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	srv := server.New(cfg, zap.NewNop())
	go srv.Hub().Run()

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	alice := dial(t, ts, ts.URL)
	alice.login("alice")
	bob := dial(t, ts, ts.URL)
	bob.login("bob")

	require.NoError(t, srv.Shutdown(2*time.Second))

	for _, client := range []*wsClient{alice, bob} {
		_ = client.conn.SetReadDeadline(deadlineSoon())
		_, _, err := client.conn.ReadMessage()
		assert.Error(t, err, "connection should be closed after shutdown")
	}
}

func TestShutdownIsIdempotentEnoughForCleanup(t *testing.T) {
	cfg := server.NewConfig()
	srv := server.New(cfg, zap.NewNop())
	go srv.Hub().Run()

	require.NoError(t, srv.Shutdown(time.Second))
}
