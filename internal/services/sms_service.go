package services

import (
	"context"
	"errors"
	"fmt"

	"clinicnotify/internal/models"

	"github.com/kavenegar/kavenegar-go"
	"go.uber.org/zap"
)

// messageSender is the Kavenegar message API.
type messageSender interface {
	Send(sender string, receptor []string, message string, params *kavenegar.MessageSendParam) ([]kavenegar.Message, error)
}

// SMSService sends reminder texts through Kavenegar.
type SMSService struct {
	messages messageSender
	sender   string
}

// NewSMSService returns the SMS fallback for provider, or nil when SMS is not
// configured. Only "kavenegar" is supported.
func NewSMSService(provider, apiKey, sender string, log *zap.Logger) *SMSService {
	switch provider {
	case "kavenegar":
		if apiKey == "" {
			log.Warn("SMS_PROVIDER is 'kavenegar' but SMS_API_KEY is not set, SMS fallback disabled")
			return nil
		}
		log.Info("SMS fallback enabled", zap.String("provider", provider), zap.String("sender", sender))
		return &SMSService{messages: kavenegar.New(apiKey).Message, sender: sender}
	case "":
		return nil
	default:
		log.Warn("unknown SMS_PROVIDER, SMS fallback disabled", zap.String("provider", provider))
		return nil
	}
}

// Name implements FallbackChannel.
func (s *SMSService) Name() string {
	return "sms"
}

// Deliver implements FallbackChannel.
func (s *SMSService) Deliver(ctx context.Context, patient models.Patient, n models.Notification) (bool, error) {
	if patient.Phone == "" {
		return false, nil
	}

	res, err := s.messages.Send(s.sender, []string{patient.Phone}, n.Title+": "+n.Message, nil)
	if err != nil {
		var apiErr *kavenegar.APIError
		var httpErr *kavenegar.HTTPError
		switch {
		case errors.As(err, &apiErr):
			return false, fmt.Errorf("kavenegar API error: %w", err)
		case errors.As(err, &httpErr):
			return false, fmt.Errorf("kavenegar HTTP error: %w", err)
		default:
			return false, fmt.Errorf("failed to send SMS: %w", err)
		}
	}
	if len(res) == 0 {
		return false, errors.New("no response entries from Kavenegar")
	}
	return true, nil
}
