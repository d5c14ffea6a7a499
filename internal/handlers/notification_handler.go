package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/waveline-app/notify-core/internal/facade"
	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/notify"
)

// NotificationHandler handles notification-related HTTP requests. Everything
// goes through the user's facade session so REST mutations share the
// optimistic cache with the websocket path.
type NotificationHandler struct {
	sessions *facade.Manager
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(sessions *facade.Manager) *NotificationHandler {
	return &NotificationHandler{sessions: sessions}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
	g.DELETE("/notifications/:id", h.DeleteNotification)
	g.DELETE("/notifications", h.ClearAll)
	g.POST("/notifications/refresh", h.Refresh)
}

// GetNotifications returns the ordered, non-deleted notification list
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	session := h.sessions.Session(c.Request().Context(), currentUserID)
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": session.Notifications(),
			"unreadCount":   session.UnreadCount(),
			"isOnline":      session.IsOnline(),
		},
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	session := h.sessions.Session(c.Request().Context(), currentUserID)
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": session.UnreadCount()}})
}

// MarkAsRead marks a notification as read
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	session := h.sessions.Session(c.Request().Context(), currentUserID)
	if err := session.MarkAsRead(c.Request().Context(), uint(notifID)); err != nil {
		if errors.Is(err, notify.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"unreadCount": session.UnreadCount()}})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	session := h.sessions.Session(c.Request().Context(), currentUserID)
	if err := session.MarkAllAsRead(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"unreadCount": session.UnreadCount()}})
}

// DeleteNotification soft-deletes a single notification
func (h *NotificationHandler) DeleteNotification(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	session := h.sessions.Session(c.Request().Context(), currentUserID)
	if err := session.Delete(c.Request().Context(), uint(notifID)); err != nil {
		if errors.Is(err, notify.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ClearAll soft-deletes every notification of the current user
func (h *NotificationHandler) ClearAll(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	session := h.sessions.Session(c.Request().Context(), currentUserID)
	if err := session.ClearAll(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Refresh re-fetches the list from the store (used by the client after a
// reconnect).
func (h *NotificationHandler) Refresh(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	session := h.sessions.Session(c.Request().Context(), currentUserID)
	if err := session.Refresh(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": session.Notifications(),
			"unreadCount":   session.UnreadCount(),
		},
	})
}

// getUserIDFromContext extracts the authenticated user ID set by the JWT
// middleware; 0 when unauthenticated.
func getUserIDFromContext(c echo.Context) uint {
	claims, ok := c.Get("user").(*models.JwtCustomClaims)
	if !ok || claims == nil {
		return 0
	}
	return claims.UserID
}
