package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/robomsg/relay/internal/relay"
)

// Hub owns the set of live WebSocket clients. Its run loop is the single
// writer of the client set: it attaches fresh connections to the router,
// starts their pumps, and tears them down on unregister or shutdown.
type Hub struct {
	router     *relay.Router
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *zap.Logger
}

// NewHub creates a hub bound to the router that will receive the clients'
// inbound events.
func NewHub(router *relay.Router, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		router:     router,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register hands a freshly upgraded connection to the hub.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Run is the hub's event loop. It must run in its own goroutine and exits
// when Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			if client == nil {
				continue
			}
			h.clients[client] = struct{}{}
			// Attach before the pumps start so no event can race the peer
			// becoming visible to the router.
			h.router.Attach(client)
			h.log.Info("client connected",
				zap.String("conn", client.id),
				zap.String("addr", client.addr),
				zap.Int("total", len(h.clients)))

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			delete(h.clients, client)
			h.router.Detach(client.id)
			client.shutdown()
			h.log.Info("client disconnected",
				zap.String("conn", client.id),
				zap.Int("total", len(h.clients)))
		}
	}
}

func (h *Hub) closeAll() {
	h.log.Info("closing all client connections", zap.Int("total", len(h.clients)))
	for client := range h.clients {
		h.router.Detach(client.id)
		client.shutdown()
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.log.Debug("close client connection", zap.Error(err))
			}
		}
	}
	h.clients = make(map[*Client]struct{})
}

// Shutdown stops the run loop, closes every connection, and waits for the
// pump goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timed out, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
