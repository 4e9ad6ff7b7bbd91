package services

import (
	"context"
	"fmt"
	"time"

	"clinicnotify/internal/metrics"
	"clinicnotify/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AppointmentStore is the part of the appointment repository the reminder
// pipeline needs.
type AppointmentStore interface {
	FindAwaitingReminders(ctx context.Context, from, to time.Time) ([]models.Appointment, error)
	LinkReminder(ctx context.Context, appointmentID string, audience models.Audience, reminderID string) (bool, error)
}

// ReminderStore creates reminder records idempotently.
type ReminderStore interface {
	CreateReminder(ctx context.Context, n *models.Notification) (string, bool, error)
}

// ScannerConfig tunes the reminder window.
type ScannerConfig struct {
	Enabled     bool
	WindowStart time.Duration
	WindowEnd   time.Duration
	LeadTime    time.Duration
	AppURL      string
	Location    *time.Location
}

// ScanResult summarizes one scanner pass.
type ScanResult struct {
	Enabled          bool
	Candidates       int
	Scheduled        int
	Failed           int
	RemindersCreated int
}

// ReminderScanner creates patient and provider reminders for appointments
// entering the reminder window.
type ReminderScanner struct {
	appointments AppointmentStore
	reminders    ReminderStore
	cfg          ScannerConfig
	log          *zap.Logger
	metrics      *metrics.Metrics
}

// NewReminderScanner creates a scanner.
func NewReminderScanner(appointments AppointmentStore, reminders ReminderStore, cfg ScannerConfig, log *zap.Logger, m *metrics.Metrics) *ReminderScanner {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ReminderScanner{
		appointments: appointments,
		reminders:    reminders,
		cfg:          cfg,
		log:          log.Named("scanner"),
		metrics:      m,
	}
}

// Window returns the [from, to] range of appointment start times eligible at now.
func (s *ReminderScanner) Window(now time.Time) (time.Time, time.Time) {
	return now.Add(s.cfg.WindowStart), now.Add(s.cfg.WindowEnd)
}

// ReminderTime is when the reminder for an appointment at start should fire.
func (s *ReminderScanner) ReminderTime(start time.Time) time.Time {
	return start.Add(-s.cfg.LeadTime)
}

// Scan schedules reminders for every eligible appointment. A failing
// appointment is logged and skipped; only the initial query can fail the pass.
func (s *ReminderScanner) Scan(ctx context.Context, now time.Time) (ScanResult, error) {
	if !s.cfg.Enabled {
		s.log.Info("reminder scanning disabled")
		return ScanResult{}, nil
	}

	result := ScanResult{Enabled: true}
	from, to := s.Window(now)
	appointments, err := s.appointments.FindAwaitingReminders(ctx, from, to)
	if err != nil {
		return result, err
	}
	result.Candidates = len(appointments)

	for _, appt := range appointments {
		created, err := s.scheduleAppointment(ctx, appt)
		result.RemindersCreated += created
		if err != nil {
			result.Failed++
			s.metrics.ReminderScanFailed.Inc()
			s.log.Error("failed to schedule appointment reminders",
				zap.String("appointment_id", appt.ID),
				zap.Error(err))
			continue
		}
		result.Scheduled++
	}

	s.log.Info("reminder scan finished",
		zap.Time("window_from", from),
		zap.Time("window_to", to),
		zap.Int("candidates", result.Candidates),
		zap.Int("scheduled", result.Scheduled),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *ReminderScanner) scheduleAppointment(ctx context.Context, appt models.Appointment) (int, error) {
	created := 0
	for _, audience := range []models.Audience{models.AudiencePatient, models.AudienceProvider} {
		if linked(appt, audience) {
			continue
		}

		reminder, err := s.buildReminder(appt, audience)
		if err != nil {
			return created, err
		}
		id, isNew, err := s.reminders.CreateReminder(ctx, reminder)
		if err != nil {
			return created, err
		}
		if isNew {
			created++
			s.metrics.RemindersScheduled.Inc()
		}

		ok, err := s.appointments.LinkReminder(ctx, appt.ID, audience, id)
		if err != nil {
			return created, err
		}
		if !ok {
			s.log.Debug("reminder already linked by a concurrent scan",
				zap.String("appointment_id", appt.ID),
				zap.String("audience", string(audience)))
		}
	}
	return created, nil
}

func linked(appt models.Appointment, audience models.Audience) bool {
	if audience == models.AudiencePatient {
		return appt.PatientReminderID != nil
	}
	return appt.ProviderReminderID != nil
}

func (s *ReminderScanner) buildReminder(appt models.Appointment, audience models.Audience) (*models.Notification, error) {
	when := appt.ScheduledAt.In(s.cfg.Location).Format("Mon Jan 2, 3:04 PM")

	var userID, title, message string
	switch audience {
	case models.AudiencePatient:
		if appt.Patient.UserID == "" {
			return nil, fmt.Errorf("patient %s has no portal account", appt.PatientID)
		}
		userID = appt.Patient.UserID
		title = "Appointment reminder"
		message = fmt.Sprintf("Your %s appointment starts at %s.", appt.Type, when)
	case models.AudienceProvider:
		userID = appt.UserID
		title = "Upcoming appointment"
		message = fmt.Sprintf("%s with %s starts at %s.", appt.Type, patientName(appt.Patient), when)
	}

	key := models.ReminderKey(appt.ID, audience)
	return &models.Notification{
		UserID:       userID,
		Type:         models.NotificationTypeAppointmentReminder,
		Title:        title,
		Message:      message,
		ScheduledFor: s.ReminderTime(appt.ScheduledAt).UTC(),
		Data: datatypes.NewJSONType(models.ReminderData{
			URL:             fmt.Sprintf("%s/appointments/%s", s.cfg.AppURL, appt.ID),
			AppointmentID:   appt.ID,
			AppointmentType: appt.Type,
			AppointmentTime: appt.ScheduledAt.UTC(),
			Audience:        audience,
		}),
		ReminderKey: &key,
	}, nil
}

func patientName(p models.Patient) string {
	if p.FullName == "" {
		return "a patient"
	}
	return p.FullName
}
