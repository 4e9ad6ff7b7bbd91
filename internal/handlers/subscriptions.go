package handlers

import (
	"fmt"
	"net/http"
	"time"

	"clinicnotify/internal/auth"
	"clinicnotify/internal/models"
	"clinicnotify/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Subscribe registers or refreshes the caller's push subscription.
func (h *Handler) Subscribe(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var request models.SubscribeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid input: %s", err.Error())})
		return
	}

	userAgent := request.UserAgent
	if userAgent == "" {
		userAgent = c.Request.UserAgent()
	}
	sub := models.PushSubscription{
		UserID:    userID,
		Endpoint:  request.Endpoint,
		P256dh:    request.Keys.P256dh,
		Auth:      request.Keys.Auth,
		UserAgent: utils.ShortUserAgent(userAgent, 512),
	}
	if err := h.subs.Upsert(c.Request.Context(), &sub); err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to save subscription", err)
		return
	}

	h.log.Info("push subscription saved", zap.String("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unsubscribe removes one of the caller's push subscriptions. Removing an
// unknown endpoint succeeds.
func (h *Handler) Unsubscribe(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var request models.UnsubscribeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid input: %s", err.Error())})
		return
	}

	removed, err := h.subs.Delete(c.Request.Context(), userID, request.Endpoint)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to remove subscription", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed > 0})
}

// ListSubscriptions returns the endpoints registered for the caller.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	subs, err := h.subs.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to load subscriptions", err)
		return
	}

	type subscriptionView struct {
		Endpoint  string `json:"endpoint"`
		UserAgent string `json:"userAgent"`
		CreatedAt string `json:"createdAt"`
	}
	views := make([]subscriptionView, 0, len(subs))
	for _, s := range subs {
		views = append(views, subscriptionView{
			Endpoint:  s.Endpoint,
			UserAgent: s.UserAgent,
			CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": views})
}

// VAPIDPublicKey exposes the application server key browsers subscribe with.
func (h *Handler) VAPIDPublicKey(c *gin.Context) {
	if h.vapidPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": h.vapidPublicKey})
}
