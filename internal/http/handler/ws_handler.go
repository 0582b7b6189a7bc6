package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"residence/internal/notify"
)

type NotificationHandler struct {
	hub      *notify.Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewNotificationHandler accepts any origin when allowed is empty or "*".
func NewNotificationHandler(hub *notify.Hub, allowed []string, log *zap.Logger) *NotificationHandler {
	origins := map[string]bool{}
	for _, o := range allowed {
		origins[o] = true
	}
	return &NotificationHandler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				o := r.Header.Get("Origin")
				return len(origins) == 0 || origins["*"] || o == "" || origins[o]
			},
		},
	}
}

// Serve upgrades GET /notifications/ws and blocks until the client leaves.
func (h *NotificationHandler) Serve(c *gin.Context) {
	u := currentUser(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("websocket upgrade", zap.Error(err))
		return
	}
	h.hub.Serve(conn, u.ID)
}
