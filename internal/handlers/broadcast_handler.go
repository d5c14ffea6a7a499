package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/waveline-app/notify-core/internal/models"
	"github.com/waveline-app/notify-core/internal/repositories"
)

// BroadcastHandler lets an administrator insert notification records
// directly. Delivery happens through the regular dispatcher path because the
// dispatcher observes the notifications table feed, not the watcher.
type BroadcastHandler struct {
	notificationRepository repositories.NotificationRepository
}

// NewBroadcastHandler creates a new BroadcastHandler
func NewBroadcastHandler(notifRepo repositories.NotificationRepository) *BroadcastHandler {
	return &BroadcastHandler{notificationRepository: notifRepo}
}

// RegisterBroadcastRoutes registers admin broadcast routes
func (h *BroadcastHandler) RegisterBroadcastRoutes(g *echo.Group) {
	g.POST("/admin/broadcasts", h.CreateBroadcast)
}

// CreateBroadcast stores one admin_broadcast record per recipient
func (h *BroadcastHandler) CreateBroadcast(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateBroadcastRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	validate := validator.New()
	if err := validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	created := 0
	for _, userID := range req.UserIDs {
		record := &models.NotificationRecord{
			UserID:  userID,
			Type:    models.NotificationAdminBroadcast,
			Content: req.Content,
		}
		if err := h.notificationRepository.Create(c.Request().Context(), record); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		created++
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"created": created}})
}
