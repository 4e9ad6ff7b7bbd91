package services

import (
	"context"
	"time"

	"clinicnotify/internal/metrics"
	"clinicnotify/internal/models"

	"go.uber.org/zap"
)

// DueStore lists due reminders and flips them to sent.
type DueStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, ids []string, at time.Time) (int64, error)
}

// UserPusher delivers a payload to all devices of a user.
type UserPusher interface {
	SendToUser(ctx context.Context, userID string, payload PushPayload) (DeliveryResult, error)
}

// AppointmentLookup resolves the appointment behind a reminder.
type AppointmentLookup interface {
	GetWithPatient(ctx context.Context, id string) (*models.Appointment, error)
}

// FallbackChannel reaches a patient outside web push. Deliver reports false
// when the patient cannot be reached on this channel at all.
type FallbackChannel interface {
	Name() string
	Deliver(ctx context.Context, patient models.Patient, n models.Notification) (bool, error)
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Processed    int
	Delivered    int
	FallbackSent int
}

// NotificationDrainer sends due reminders. Every drained reminder is marked
// sent whatever the delivery outcome, so nothing is retried indefinitely.
type NotificationDrainer struct {
	store        DueStore
	pusher       UserPusher
	appointments AppointmentLookup
	fallbacks    []FallbackChannel
	batchSize    int
	log          *zap.Logger
	metrics      *metrics.Metrics
	iconURL      string
}

// NewNotificationDrainer creates a drainer. pusher may be nil when push is not
// configured, in which case DrainDue fails before touching the store.
func NewNotificationDrainer(store DueStore, pusher UserPusher, appointments AppointmentLookup, batchSize int, log *zap.Logger, m *metrics.Metrics, fallbacks ...FallbackChannel) *NotificationDrainer {
	return &NotificationDrainer{
		store:        store,
		pusher:       pusher,
		appointments: appointments,
		fallbacks:    fallbacks,
		batchSize:    batchSize,
		log:          log.Named("drain"),
		metrics:      m,
		iconURL:      "/icons/icon-192x192.png",
	}
}

// DrainDue sends every unsent reminder scheduled at or before now and marks
// them all sent. Due records are fetched in batches until none are left.
func (d *NotificationDrainer) DrainDue(ctx context.Context, now time.Time) (DrainResult, error) {
	var result DrainResult
	if d.pusher == nil {
		return result, ErrPushNotConfigured
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		due, err := d.store.ListDue(ctx, now, d.batchSize)
		if err != nil {
			return result, err
		}
		if len(due) == 0 {
			break
		}

		marked, err := d.drainBatch(ctx, due, now, &result)
		if err != nil {
			return result, err
		}
		// A short batch is the last one. Nothing marked means another drain
		// owns the remaining rows.
		if d.batchSize <= 0 || len(due) < d.batchSize || marked == 0 {
			break
		}
	}

	if result.Processed > 0 {
		d.log.Info("drained due notifications",
			zap.Int("processed", result.Processed),
			zap.Int("delivered", result.Delivered),
			zap.Int("fallback_sent", result.FallbackSent))
	}
	return result, nil
}

func (d *NotificationDrainer) drainBatch(ctx context.Context, due []models.Notification, now time.Time, result *DrainResult) (int64, error) {
	ids := make([]string, 0, len(due))
	for _, n := range due {
		ids = append(ids, n.ID)
		result.Processed++

		res, err := d.pusher.SendToUser(ctx, n.UserID, BuildPushPayload(n, d.iconURL, now))
		if err != nil {
			d.log.Error("failed to dispatch notification", zap.String("notification_id", n.ID), zap.Error(err))
		}
		if res.Success() {
			result.Delivered++
			continue
		}
		if d.fallback(ctx, n) {
			result.FallbackSent++
		}
	}

	marked, err := d.store.MarkSent(ctx, ids, now)
	if err != nil {
		return 0, err
	}
	d.metrics.NotificationsDrained.Add(float64(marked))
	return marked, nil
}

// fallback tries each channel in order for patient reminders that reached no
// device. It never fails the drain.
func (d *NotificationDrainer) fallback(ctx context.Context, n models.Notification) bool {
	data := n.Data.Data()
	if len(d.fallbacks) == 0 || data.Audience != models.AudiencePatient || data.AppointmentID == "" {
		return false
	}

	appt, err := d.appointments.GetWithPatient(ctx, data.AppointmentID)
	if err != nil {
		d.log.Warn("cannot resolve patient for fallback", zap.String("notification_id", n.ID), zap.Error(err))
		return false
	}

	for _, ch := range d.fallbacks {
		ok, err := ch.Deliver(ctx, appt.Patient, n)
		switch {
		case err != nil:
			d.metrics.FallbackDeliveries.WithLabelValues(ch.Name(), "failed").Inc()
			d.log.Warn("fallback delivery failed",
				zap.String("channel", ch.Name()),
				zap.String("notification_id", n.ID),
				zap.Error(err))
		case ok:
			d.metrics.FallbackDeliveries.WithLabelValues(ch.Name(), "delivered").Inc()
			return true
		}
	}
	return false
}

// BuildPushPayload renders a notification into the service worker payload.
func BuildPushPayload(n models.Notification, iconURL string, now time.Time) PushPayload {
	data := n.Data.Data()
	payload := PushPayload{
		Title:              n.Title,
		Body:               n.Message,
		Icon:               iconURL,
		Badge:              iconURL,
		Tag:                n.Type,
		RequireInteraction: n.Type == models.NotificationTypeAppointmentReminder,
		Actions: []PushAction{
			{Action: "view", Title: "View"},
			{Action: "dismiss", Title: "Dismiss"},
		},
		Data: PushData{
			URL:             data.URL,
			Timestamp:       now.UnixMilli(),
			AppointmentID:   data.AppointmentID,
			AppointmentType: data.AppointmentType,
		},
	}
	if data.AppointmentID != "" {
		payload.Tag = n.Type + "-" + data.AppointmentID
	}
	if !data.AppointmentTime.IsZero() {
		payload.Data.AppointmentTime = data.AppointmentTime.UTC().Format(time.RFC3339)
	}
	if payload.Data.URL == "" {
		payload.Data.URL = "/notifications"
	}
	return payload
}
