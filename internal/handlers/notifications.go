package handlers

import (
	"errors"
	"net/http"
	"time"

	"clinicnotify/internal/auth"
	"clinicnotify/internal/models"
	"clinicnotify/internal/repository"

	"github.com/gin-gonic/gin"
)

const pendingLimit = 50

// NotificationView is a sent notification as the poller receives it.
type NotificationView struct {
	ID      string              `json:"id"`
	Type    string              `json:"type"`
	Title   string              `json:"title"`
	Message string              `json:"message"`
	Data    models.ReminderData `json:"data"`
	SentAt  time.Time           `json:"sentAt"`
}

// PendingResponse is the body of the pending endpoint. HasMore reports that
// further unread notifications exist beyond this page.
type PendingResponse struct {
	Notifications []NotificationView `json:"notifications"`
	HasMore       bool               `json:"hasMore"`
}

// PendingNotifications returns the caller's sent, unread notifications with
// sent_at strictly after the since query parameter (RFC 3339).
func (h *Handler) PendingNotifications(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an RFC 3339 timestamp"})
			return
		}
		since = parsed.UTC()
	}

	pending, err := h.notifications.ListSentSince(c.Request.Context(), userID, since, pendingLimit+1)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to load notifications", err)
		return
	}

	resp := PendingResponse{HasMore: len(pending) > pendingLimit}
	if resp.HasMore {
		pending = pending[:pendingLimit]
	}
	resp.Notifications = make([]NotificationView, 0, len(pending))
	for _, n := range pending {
		view := NotificationView{
			ID:      n.ID,
			Type:    n.Type,
			Title:   n.Title,
			Message: n.Message,
			Data:    n.Data.Data(),
		}
		if n.SentAt != nil {
			view.SentAt = n.SentAt.UTC()
		}
		resp.Notifications = append(resp.Notifications, view)
	}
	c.JSON(http.StatusOK, resp)
}

// MarkNotificationRead records that the caller has seen a notification.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	err := h.notifications.MarkRead(c.Request.Context(), c.Param("id"), userID, h.now())
	if errors.Is(err, repository.ErrNotificationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to update notification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
