package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bintunet/internal/core/domain"
)

// SnapshotServer pushes a user's stream events over a websocket.
type SnapshotServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID domain.UserID, snapshot func() []*domain.Stream) error
}

type WSHandler struct {
	hub    SnapshotServer
	logger *zap.SugaredLogger
}

func NewWSHandler(hub SnapshotServer, logger *zap.SugaredLogger) *WSHandler {
	return &WSHandler{hub: hub, logger: logger}
}

func (h *WSHandler) SetupRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	api.GET("/ws", auth, h.Connect)
}

// Connect upgrades the request and blocks until the client goes away.
func (h *WSHandler) Connect(c *gin.Context) {
	session, ok := sessionOrAbort(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	snapshot := func() []*domain.Stream { return session.Engine.List(ctx) }
	if err := h.hub.Serve(c.Writer, c.Request, session.User.ID, snapshot); err != nil {
		// the upgrader has already answered the request
		h.logger.Warnw("websocket connection failed", "user_id", session.User.ID, "error", err)
	}
}
