package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicnotify/internal/models"

	"gorm.io/gorm"
)

// AppointmentRepository reads appointments and records reminder linkage.
type AppointmentRepository struct {
	db *gorm.DB
}

// NewAppointmentRepository creates an appointment repository.
func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// FindAwaitingReminders returns scheduled appointments starting in [from, to]
// that still miss at least one reminder link, with the patient preloaded.
func (r *AppointmentRepository) FindAwaitingReminders(ctx context.Context, from, to time.Time) ([]models.Appointment, error) {
	var appointments []models.Appointment
	err := r.db.WithContext(ctx).
		Preload("Patient").
		Where("status = ? AND scheduled_at >= ? AND scheduled_at <= ?", models.AppointmentScheduled, from.UTC(), to.UTC()).
		Where("patient_reminder_id IS NULL OR provider_reminder_id IS NULL").
		Order("scheduled_at ASC").
		Find(&appointments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments awaiting reminders: %w", err)
	}
	return appointments, nil
}

// LinkReminder stores reminderID in the audience's linkage column unless
// another scanner got there first. It reports whether the row was updated.
func (r *AppointmentRepository) LinkReminder(ctx context.Context, appointmentID string, audience models.Audience, reminderID string) (bool, error) {
	column, err := linkageColumn(audience)
	if err != nil {
		return false, err
	}

	res := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND "+column+" IS NULL", appointmentID).
		Updates(map[string]interface{}{
			column:       reminderID,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to link %s reminder to appointment %s: %w", audience, appointmentID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GetWithPatient loads one appointment and its patient.
func (r *AppointmentRepository) GetWithPatient(ctx context.Context, id string) (*models.Appointment, error) {
	var appointment models.Appointment
	err := r.db.WithContext(ctx).Preload("Patient").First(&appointment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load appointment %s: %w", id, err)
	}
	return &appointment, nil
}

func linkageColumn(audience models.Audience) (string, error) {
	switch audience {
	case models.AudiencePatient:
		return "patient_reminder_id", nil
	case models.AudienceProvider:
		return "provider_reminder_id", nil
	default:
		return "", fmt.Errorf("unknown reminder audience %q", audience)
	}
}
