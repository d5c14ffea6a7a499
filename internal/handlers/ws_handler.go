package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/waveline-app/notify-core/internal/channels"
	"github.com/waveline-app/notify-core/internal/facade"
	"github.com/waveline-app/notify-core/internal/realtime"
	"github.com/waveline-app/notify-core/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler attaches the authenticated user's websocket to the realtime hub.
type WSHandler struct {
	hub      *realtime.Hub
	sessions *facade.Manager
	local    *channels.LocalAlertChannel
}

// NewWSHandler creates a new WSHandler
func NewWSHandler(hub *realtime.Hub, sessions *facade.Manager, local *channels.LocalAlertChannel) *WSHandler {
	return &WSHandler{hub: hub, sessions: sessions, local: local}
}

// RegisterWSRoutes registers the websocket route
func (h *WSHandler) RegisterWSRoutes(g *echo.Group) {
	g.GET("/ws", h.Connect)
}

// Connect upgrades the request and pumps frames until the client goes away.
func (h *WSHandler) Connect(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	// Warm the facade session so the first frames have a loaded snapshot.
	h.sessions.Session(c.Request().Context(), currentUserID)

	client := h.hub.Attach(currentUserID, conn)
	defer func() {
		h.hub.Detach(client)
		if !h.hub.Connected(currentUserID) {
			// Last socket gone: the local alert permission was session
			// state, drop it.
			h.local.Reset(currentUserID)
		}
	}()

	// Read loop exists only to observe the close; clients talk to the core
	// over the REST surface.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			logger.Log.WithField("user_id", currentUserID).Debug("Websocket closed")
			return nil
		}
	}
}
