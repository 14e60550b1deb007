package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ikkim/delivery-tracker/internal/middleware"
	ws "github.com/ikkim/delivery-tracker/internal/websocket"
)

// StatusFeedController streams attempt status changes to dispatch boards.
type StatusFeedController struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

func NewStatusFeedController(hub *ws.Hub, allowedOrigins []string) *StatusFeedController {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &StatusFeedController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// non-browser clients send no origin
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Subscribe upgrades to a websocket carrying status changes of the caller's stores.
// GET /api/v1/feed/attempts
func (ctrl *StatusFeedController) Subscribe(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("Failed to upgrade to WebSocket", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	client := ws.NewClient(ctrl.hub, &ws.Conn{Conn: conn}, principal.UserID, principal.Roles.IsSuperuser(), principal.StoreIDs)
	ctrl.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	log.Info("Status feed connected", map[string]interface{}{
		"store_ids": principal.StoreIDs,
	})
}

// ConnectedUsers reports how many users hold an open feed session.
func (ctrl *StatusFeedController) ConnectedUsers() int {
	return ctrl.hub.ConnectedUsers()
}
