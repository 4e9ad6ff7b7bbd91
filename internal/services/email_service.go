package services

import (
	"context"
	"fmt"
	"html"

	"clinicnotify/internal/models"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// mailSender is the SendGrid client API.
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailService sends reminder emails through SendGrid.
type EmailService struct {
	client    mailSender
	fromEmail string
	fromName  string
}

// NewEmailService returns the email fallback, or nil when SendGrid is not configured.
func NewEmailService(apiKey, fromEmail, fromName string) *EmailService {
	if apiKey == "" || fromEmail == "" {
		return nil
	}
	return &EmailService{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// Name implements FallbackChannel.
func (s *EmailService) Name() string {
	return "email"
}

// Deliver implements FallbackChannel.
func (s *EmailService) Deliver(ctx context.Context, patient models.Patient, n models.Notification) (bool, error) {
	if patient.Email == "" {
		return false, nil
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(patient.FullName, patient.Email)
	plainContent := fmt.Sprintf("Hello %s, %s", patient.FullName, n.Message)
	htmlContent := fmt.Sprintf("<p>Hello %s,</p><p>%s</p>", html.EscapeString(patient.FullName), html.EscapeString(n.Message))
	if url := n.Data.Data().URL; url != "" {
		plainContent += " Details: " + url
		htmlContent += fmt.Sprintf(`<p><a href="%s">View appointment</a></p>`, html.EscapeString(url))
	}

	message := mail.NewSingleEmail(from, n.Title, to, plainContent, htmlContent)
	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return false, fmt.Errorf("failed to send email to %s: %w", patient.Email, err)
	}
	if response.StatusCode >= 400 {
		return false, fmt.Errorf("failed to send email to %s: %d", patient.Email, response.StatusCode)
	}
	return true, nil
}
