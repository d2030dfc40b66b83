package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/robomsg/relay/internal/relay"
)

// Routes builds the gin engine: the WebSocket upgrade endpoint, the REST
// collaborator surface, and a liveness check.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/ws", s.handleWebSocket)

	api := engine.Group("/api")
	api.GET("/users/online", s.handleOnlineUsers)
	api.GET("/messages/:roomId", s.handleRoomHistory)
	api.POST("/messages", s.handlePostMessage)

	return engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "relay is running")
}

// handleWebSocket upgrades the request and hands the connection to the hub,
// which starts the pumps. Each connection gets a fresh id.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := newClient(uuid.NewString(), conn, s.hub, s.cfg, s.log)
	s.hub.Register(client)
}

func (s *Server) handleOnlineUsers(c *gin.Context) {
	users := s.registry.OnlineUsers("")
	summaries := lo.Map(users, func(u relay.User, _ int) relay.UserSummary {
		return u.Summary()
	})
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleRoomHistory(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.History(c.Param("roomId")))
}

type postMessageRequest struct {
	RoomID string `json:"roomId" binding:"required"`
	Sender string `json:"sender" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

// handlePostMessage appends through the router's shared path, so REST writes
// fan out to live room members exactly like realtime sendMessage events.
func (s *Server) handlePostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, ok := s.router.PostMessage(req.RoomID, req.Sender, req.Text)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}
	c.JSON(http.StatusCreated, m)
}
