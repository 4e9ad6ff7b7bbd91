package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"clinicnotify/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BulkSendRequest is an ad-hoc message to many users.
type BulkSendRequest struct {
	UserIDs []string `json:"userIds" binding:"required,min=1,dive,required"`
	Title   string   `json:"title" binding:"required"`
	Body    string   `json:"body" binding:"required"`
	URL     string   `json:"url"`
}

// ScheduleReminders runs one reminder scan.
func (h *Handler) ScheduleReminders(c *gin.Context) {
	if !h.remindersEnabled {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Reminder scheduling is disabled", "scheduledCount": 0})
		return
	}

	res, err := h.scanner.Scan(c.Request.Context(), h.now())
	if err != nil {
		h.log.Error("reminder scan failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to schedule reminders", "scheduledCount": 0})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        fmt.Sprintf("Scheduled reminders for %d appointments", res.Scheduled),
		"scheduledCount": res.Scheduled,
	})
}

// SendNotifications drains every due reminder.
func (h *Handler) SendNotifications(c *gin.Context) {
	if !h.remindersEnabled {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Reminder delivery is disabled", "processedCount": 0, "sentCount": 0})
		return
	}

	res, err := h.drainer.DrainDue(c.Request.Context(), h.now())
	switch {
	case errors.Is(err, services.ErrPushNotConfigured):
		h.log.Error("notification drain skipped", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Push notifications are not configured", "processedCount": 0, "sentCount": 0})
		return
	case err != nil:
		h.log.Error("notification drain failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to send notifications", "processedCount": res.Processed, "sentCount": 0})
		return
	}

	sent := res.Delivered + res.FallbackSent
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"message":        fmt.Sprintf("Processed %d notifications, %d delivered", res.Processed, sent),
		"processedCount": res.Processed,
		"sentCount":      sent,
	})
}

// SendPush pushes an ad-hoc message to the listed users.
func (h *Handler) SendPush(c *gin.Context) {
	var request BulkSendRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": fmt.Sprintf("Invalid input: %s", err.Error())})
		return
	}
	if h.pusher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Push notifications are not configured", "sentCount": 0})
		return
	}

	payload := services.PushPayload{
		Title:   request.Title,
		Body:    request.Body,
		Icon:    "/icons/icon-192x192.png",
		Badge:   "/icons/icon-192x192.png",
		Tag:     "announcement",
		Actions: []services.PushAction{{Action: "view", Title: "View"}, {Action: "dismiss", Title: "Dismiss"}},
		Data:    services.PushData{URL: request.URL, Timestamp: h.now().UnixMilli()},
	}
	if payload.Data.URL == "" {
		payload.Data.URL = "/notifications"
	}

	reached, err := h.pusher.SendToUsers(c.Request.Context(), request.UserIDs, payload)
	if err != nil {
		h.log.Error("bulk push failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to send push notifications", "sentCount": 0})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   fmt.Sprintf("Delivered to %d of %d users", reached, len(request.UserIDs)),
		"sentCount": reached,
	})
}
