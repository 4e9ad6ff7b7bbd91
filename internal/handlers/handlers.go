package handlers

import (
	"context"
	"net/http"
	"time"

	"clinicnotify/internal/models"
	"clinicnotify/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubscriptionStore is the subscription repository as the API uses it.
type SubscriptionStore interface {
	Upsert(ctx context.Context, sub *models.PushSubscription) error
	ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error)
	Delete(ctx context.Context, userID, endpoint string) (int64, error)
}

// NotificationStore backs the polling API.
type NotificationStore interface {
	ListSentSince(ctx context.Context, userID string, since time.Time, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string, at time.Time) error
}

// BulkPusher sends one message to many users.
type BulkPusher interface {
	SendToUsers(ctx context.Context, userIDs []string, payload services.PushPayload) (int, error)
}

// Deps are the collaborators of the HTTP handlers. Pusher is nil when web
// push is not configured.
type Deps struct {
	Scanner          services.Scanner
	Drainer          services.Drainer
	Pusher           BulkPusher
	Subscriptions    SubscriptionStore
	Notifications    NotificationStore
	RemindersEnabled bool
	VAPIDPublicKey   string
	Log              *zap.Logger
}

// Handler serves the reminder API.
type Handler struct {
	scanner          services.Scanner
	drainer          services.Drainer
	pusher           BulkPusher
	subs             SubscriptionStore
	notifications    NotificationStore
	remindersEnabled bool
	vapidPublicKey   string
	log              *zap.Logger
	now              func() time.Time
}

// New creates the handlers.
func New(d Deps) *Handler {
	return &Handler{
		scanner:          d.Scanner,
		drainer:          d.Drainer,
		pusher:           d.Pusher,
		subs:             d.Subscriptions,
		notifications:    d.Notifications,
		remindersEnabled: d.RemindersEnabled,
		vapidPublicKey:   d.VAPIDPublicKey,
		log:              d.Log.Named("http"),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// handleError provides a consistent way to handle and log errors
func (h *Handler) handleError(c *gin.Context, status int, message string, err error) {
	h.log.Error(message, zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(status, gin.H{"error": message})
}

// HomeHandler handles requests to the root path "/"
func HomeHandler(c *gin.Context) {
	c.String(http.StatusOK, "Clinic reminder service")
}

// HealthHandler is a simple health check endpoint
func HealthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
