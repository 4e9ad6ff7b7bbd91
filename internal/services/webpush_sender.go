package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"clinicnotify/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// WebPushSender encrypts and posts messages to push services with VAPID auth.
type WebPushSender struct {
	options webpush.Options
}

// NewWebPushSender creates a sender. client may be nil to use the default
// HTTP client.
func NewWebPushSender(publicKey, privateKey, subject string, ttl int, client webpush.HTTPClient) (*WebPushSender, error) {
	if publicKey == "" || privateKey == "" {
		return nil, ErrPushNotConfigured
	}
	return &WebPushSender{
		options: webpush.Options{
			HTTPClient: client,
			// webpush-go adds the mailto: scheme itself
			Subscriber:      strings.TrimPrefix(subject, "mailto:"),
			VAPIDPublicKey:  publicKey,
			VAPIDPrivateKey: privateKey,
			TTL:             ttl,
			Urgency:         webpush.UrgencyHigh,
		},
	}, nil
}

// Send implements PushSender.
func (s *WebPushSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error) {
	opts := s.options
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &opts)
	if err != nil {
		return 0, fmt.Errorf("failed to send push to %s: %w", shortEndpoint(sub.Endpoint), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// GenerateVAPIDKeys returns a new (public, private) VAPID key pair.
func GenerateVAPIDKeys() (string, string, error) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
