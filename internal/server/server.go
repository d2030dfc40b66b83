package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/robomsg/relay/internal/relay"
)

// Server assembles the relay: the core services, the hub, and the HTTP
// surface, with a graceful shutdown path across all of them.
type Server struct {
	cfg      Config
	log      *zap.Logger
	registry *relay.Registry
	rooms    *relay.Directory
	store    *relay.Store
	router   *relay.Router
	hub      *Hub
	upgrader websocket.Upgrader
	http     *http.Server
}

// New wires a server from the given configuration. The hub's run loop starts
// when Start is called.
func New(cfg Config, log *zap.Logger) *Server {
	cfg = cfg.sanitized()
	if log == nil {
		log = zap.NewNop()
	}

	registry := relay.NewRegistry(cfg.EvictionGrace, log)
	rooms := relay.NewDirectory()
	store := relay.NewStore(cfg.HistoryLimit)
	router := relay.NewRouter(registry, rooms, store, log)
	hub := NewHub(router, log)
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	s := &Server{
		cfg:      cfg,
		log:      log,
		registry: registry,
		rooms:    rooms,
		store:    store,
		router:   router,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.check,
		},
	}
	s.http = &http.Server{
		Addr:         cfg.Port,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Hub exposes the connection hub, mainly for tests.
func (s *Server) Hub() *Hub { return s.hub }

// Router exposes the event router, mainly for tests.
func (s *Server) Router() *relay.Router { return s.router }

// Start runs the hub loop and serves HTTP, blocking until the listener stops.
func (s *Server) Start() error {
	go s.hub.Run()
	s.log.Info("relay listening", zap.String("addr", s.cfg.Port))

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the HTTP server, stops the hub, and cancels pending
// eviction timers. Safe to call once after Start.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpErr := s.http.Shutdown(ctx)
	hubErr := s.hub.Shutdown(timeout)
	s.registry.Stop()

	if httpErr != nil {
		return httpErr
	}
	return hubErr
}
