package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/waveline-app/notify-core/internal/channels"
	"github.com/waveline-app/notify-core/internal/facade"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/realtime"
)

// PushHandler handles push channel opt-in/opt-out and permission reporting.
type PushHandler struct {
	registry *channels.Registry
	sessions *facade.Manager
	hub      *realtime.Hub
}

// NewPushHandler creates a new PushHandler
func NewPushHandler(registry *channels.Registry, sessions *facade.Manager, hub *realtime.Hub) *PushHandler {
	return &PushHandler{registry: registry, sessions: sessions, hub: hub}
}

// RegisterPushRoutes registers push subscription routes
func (h *PushHandler) RegisterPushRoutes(g *echo.Group) {
	g.GET("/push/state", h.GetState)
	g.POST("/push/subscriptions", h.Subscribe)
	g.DELETE("/push/subscriptions/:channel", h.Unsubscribe)
	g.POST("/push/permission", h.ReportPermission)
	g.POST("/push/permission/request", h.RequestPermission)
}

// GetState returns per-channel permission and subscription state
func (h *PushHandler) GetState(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	ctx := c.Request().Context()
	state := make([]echo.Map, 0, len(h.registry.Channels()))
	for _, ch := range h.registry.Channels() {
		perm, err := ch.PermissionState(ctx, currentUserID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		state = append(state, echo.Map{
			"channel_id": ch.ID(),
			"kind":       ch.Kind(),
			"permission": perm,
			"subscribed": ch.Subscribed(ctx, currentUserID),
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"channels":          state,
			"permissionGranted": h.registry.PermissionGranted(ctx, currentUserID),
		},
	})
}

// Subscribe registers a provider token as the subscription handle
func (h *PushHandler) Subscribe(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.RegisterPushRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ch := h.registry.ByID(req.ChannelID)
	if ch == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Unknown channel")
	}

	handle, err := ch.Subscribe(c.Request().Context(), currentUserID, req.Token)
	if err != nil {
		// Subscribe failures are non-fatal: the channel stays granted but
		// unsubscribed and the caller may retry.
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"handle": handle}})
}

// Unsubscribe clears the provider handle for a channel
func (h *PushHandler) Unsubscribe(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	ch := h.registry.ByID(c.Param("channel"))
	if ch == nil {
		return echo.NewHTTPError(http.StatusNotFound, "Unknown channel")
	}
	if err := ch.Unsubscribe(c.Request().Context(), currentUserID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ReportPermission records a user-agent permission decision observed by the
// client. It also resolves any prompt currently waiting on that decision.
func (h *PushHandler) ReportPermission(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.ReportPermissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	state := models.PermissionState(req.State)
	ctx := c.Request().Context()

	var err error
	switch ch := h.registry.ByID(req.ChannelID).(type) {
	case *channels.FCMChannel:
		err = ch.ReportPermission(ctx, currentUserID, state)
	case *channels.LocalAlertChannel:
		err = ch.ReportPermission(currentUserID, state)
	default:
		return echo.NewHTTPError(http.StatusNotFound, "Unknown channel")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	h.hub.ResolvePermission(currentUserID, req.ChannelID, state)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// RequestPermission drives the prompt flow across channels; it blocks at most
// the configured prompt timeout.
func (h *PushHandler) RequestPermission(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	session := h.sessions.Session(c.Request().Context(), currentUserID)
	state, err := session.RequestPermission(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"permission": state}})
}
