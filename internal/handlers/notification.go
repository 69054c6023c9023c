package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yudapramadita/lokapasar/internal/session"
	"github.com/yudapramadita/lokapasar/internal/store"
)

type NotificationHandler struct {
	Store    *store.Store
	Sessions *session.Manager
	Log      *zap.Logger
}

func NewNotificationHandler(st *store.Store, sessions *session.Manager, log *zap.Logger) *NotificationHandler {
	return &NotificationHandler{Store: st, Sessions: sessions, Log: log}
}

// List returns the alarm feed, newest first.
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	notifs, err := h.Store.NotificationsForUser(c.Context(), userUUID, c.QueryInt("limit", 50))
	if err != nil {
		h.Log.Error("notifications: list", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch notifications")
	}

	return c.JSON(fiber.Map{"success": true, "data": notifs})
}

// UnreadCount returns the badge value: the session engine's (possibly muted)
// count when live, else the authoritative query.
func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	if s, ok := h.Sessions.Get(userUUID); ok {
		return c.JSON(fiber.Map{"success": true, "data": s.Notify.Badge()})
	}

	count, err := h.Store.UnreadNotificationCount(c.Context(), userUUID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to count notifications")
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"unread": count, "raw": count}})
}

// MarkAllRead flips every unread notification of the caller.
func (h *NotificationHandler) MarkAllRead(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	if s, ok := h.Sessions.Get(userUUID); ok {
		if err := s.Notify.MarkAllRead(c.Context()); err != nil {
			return fail(c, fiber.StatusInternalServerError, "Failed to mark notifications read")
		}
		return c.JSON(fiber.Map{"success": true})
	}

	if err := h.Store.MarkAllNotificationsRead(c.Context(), userUUID); err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to mark notifications read")
	}
	return c.JSON(fiber.Map{"success": true})
}

// Delete removes one notification, owner only.
func (h *NotificationHandler) Delete(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid notification ID")
	}

	if err := h.Store.DeleteNotification(c.Context(), id, userUUID); err != nil {
		return fail(c, fiber.StatusNotFound, "Notification not found")
	}
	return c.JSON(fiber.Map{"success": true})
}

// SetAlarmActive mutes or unmutes the badge while the alarm screen is open.
func (h *NotificationHandler) SetAlarmActive(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return fail(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request")
	}

	s, ok := h.Sessions.Get(userUUID)
	if !ok {
		return fail(c, fiber.StatusConflict, "No live session")
	}
	s.Notify.SetAlarmActive(req.Active)

	return c.JSON(fiber.Map{"success": true, "data": s.Notify.Badge()})
}
