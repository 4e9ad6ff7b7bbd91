package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"clinicnotify/internal/metrics"
	"clinicnotify/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPushNotConfigured is returned when web push is used without VAPID keys.
var ErrPushNotConfigured = errors.New("web push is not configured: VAPID keys missing")

// PushAction is a button shown on the notification.
type PushAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// PushData is the structured part of the payload the service worker reads.
type PushData struct {
	URL             string `json:"url"`
	Timestamp       int64  `json:"timestamp"`
	AppointmentID   string `json:"appointment_id,omitempty"`
	AppointmentType string `json:"appointment_type,omitempty"`
	AppointmentTime string `json:"appointment_time,omitempty"`
}

// PushPayload is the JSON document encrypted into every push message.
type PushPayload struct {
	Title              string       `json:"title"`
	Body               string       `json:"body"`
	Icon               string       `json:"icon"`
	Badge              string       `json:"badge"`
	Tag                string       `json:"tag"`
	RequireInteraction bool         `json:"requireInteraction"`
	Actions            []PushAction `json:"actions"`
	Data               PushData     `json:"data"`
}

// PushSender delivers one encrypted message to one endpoint and reports the
// push service's HTTP status.
type PushSender interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error)
}

// SubscriptionStore is the part of the subscription repository the dispatcher needs.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.PushSubscription, error)
	DeleteEndpoints(ctx context.Context, userID string, endpoints []string) (int64, error)
}

// DeliveryResult aggregates one user's fan-out.
type DeliveryResult struct {
	Attempted int
	Delivered int
	Failed    int
	Pruned    int
}

// Success reports whether at least one device accepted the message.
func (r DeliveryResult) Success() bool {
	return r.Delivered > 0
}

type deliveryOutcome string

const (
	outcomeDelivered deliveryOutcome = "delivered"
	outcomeGone      deliveryOutcome = "gone"
	outcomeFailed    deliveryOutcome = "failed"
)

// classifyDelivery maps a send attempt to its outcome. 404 and 410 mean the
// endpoint no longer exists; anything else that is not 2xx is transient.
func classifyDelivery(status int, err error) deliveryOutcome {
	switch {
	case err != nil:
		return outcomeFailed
	case status == http.StatusNotFound || status == http.StatusGone:
		return outcomeGone
	case status >= 200 && status < 300:
		return outcomeDelivered
	default:
		return outcomeFailed
	}
}

// PushService fans push messages out to every subscription of a user.
type PushService struct {
	subs            SubscriptionStore
	sender          PushSender
	log             *zap.Logger
	metrics         *metrics.Metrics
	bulkConcurrency int
}

// NewPushService creates a dispatcher. bulkConcurrency bounds how many users
// SendToUsers serves at once.
func NewPushService(subs SubscriptionStore, sender PushSender, log *zap.Logger, m *metrics.Metrics, bulkConcurrency int) *PushService {
	if bulkConcurrency <= 0 {
		bulkConcurrency = 1
	}
	return &PushService{
		subs:            subs,
		sender:          sender,
		log:             log.Named("push"),
		metrics:         m,
		bulkConcurrency: bulkConcurrency,
	}
}

// SendToUser delivers payload to every subscription of userID concurrently.
// Every subscription is attempted; endpoints reported gone are deleted in one
// batch after all attempts finished. The error is reserved for failures that
// prevent the fan-out itself.
func (s *PushService) SendToUser(ctx context.Context, userID string, payload PushPayload) (DeliveryResult, error) {
	var result DeliveryResult
	if s.sender == nil {
		return result, ErrPushNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("failed to encode push payload: %w", err)
	}

	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return result, err
	}
	if len(subs) == 0 {
		s.log.Debug("no push subscriptions", zap.String("user_id", userID))
		return result, nil
	}

	outcomes := make([]deliveryOutcome, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub models.PushSubscription) {
			defer wg.Done()
			status, err := s.sender.Send(ctx, sub, body)
			outcomes[i] = classifyDelivery(status, err)
			if outcomes[i] == outcomeFailed {
				s.log.Warn("push delivery failed",
					zap.String("user_id", userID),
					zap.String("endpoint", shortEndpoint(sub.Endpoint)),
					zap.Int("status", status),
					zap.Error(err))
			}
		}(i, sub)
	}
	wg.Wait()

	var gone []string
	result.Attempted = len(subs)
	for i, outcome := range outcomes {
		s.metrics.PushDeliveries.WithLabelValues(string(outcome)).Inc()
		switch outcome {
		case outcomeDelivered:
			result.Delivered++
		case outcomeGone:
			gone = append(gone, subs[i].Endpoint)
		default:
			result.Failed++
		}
	}

	if len(gone) > 0 {
		pruned, err := s.subs.DeleteEndpoints(ctx, userID, gone)
		if err != nil {
			s.log.Error("failed to prune dead push subscriptions", zap.String("user_id", userID), zap.Error(err))
		} else {
			result.Pruned = int(pruned)
			s.metrics.SubscriptionsPruned.Add(float64(pruned))
			s.log.Info("pruned dead push subscriptions", zap.String("user_id", userID), zap.Int64("count", pruned))
		}
	}

	return result, nil
}

// SendToUsers applies SendToUser to each user independently and returns how
// many users received the message on at least one device.
func (s *PushService) SendToUsers(ctx context.Context, userIDs []string, payload PushPayload) (int, error) {
	if s.sender == nil {
		return 0, ErrPushNotConfigured
	}

	var delivered atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.bulkConcurrency)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			res, err := s.SendToUser(gctx, userID, payload)
			if err != nil {
				s.log.Error("push to user failed", zap.String("user_id", userID), zap.Error(err))
				return nil
			}
			if res.Success() {
				delivered.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(delivered.Load()), nil
}

func shortEndpoint(endpoint string) string {
	if len(endpoint) > 50 {
		return endpoint[:50]
	}
	return endpoint
}
