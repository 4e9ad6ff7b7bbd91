package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppointmentStatus is the lifecycle state of an appointment
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentNoShow    AppointmentStatus = "no_show"
)

// Patient is the subset of the practice's patient record the reminder
// pipeline reads. Patients are managed elsewhere.
type Patient struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	UserID   string `gorm:"size:64;not null;index" json:"user_id"` // portal account
	FullName string `gorm:"size:255;not null" json:"full_name"`
	Phone    string `gorm:"size:32" json:"phone"`
	Email    string `gorm:"size:255" json:"email"`
}

// Appointment is a scheduled visit between a patient and a provider.
// PatientReminderID and ProviderReminderID are set once the matching
// reminder record exists.
type Appointment struct {
	ID                 string            `gorm:"primaryKey;size:36" json:"id"`
	PatientID          string            `gorm:"size:36;not null;index" json:"patient_id"`
	Patient            Patient           `gorm:"foreignKey:PatientID" json:"patient"`
	UserID             string            `gorm:"size:64;not null;index" json:"user_id"` // provider
	ScheduledAt        time.Time         `gorm:"not null;index" json:"scheduled_at"`
	Type               string            `gorm:"size:64;not null" json:"type"`
	Status             AppointmentStatus `gorm:"size:20;not null;default:scheduled;index" json:"status"`
	PatientReminderID  *string           `gorm:"size:36" json:"patient_reminder_id"`
	ProviderReminderID *string           `gorm:"size:36" json:"provider_reminder_id"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not
func (p *Patient) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

func (a *Appointment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	return nil
}

// HasAllReminders reports whether both audiences are linked.
func (a *Appointment) HasAllReminders() bool {
	return a.PatientReminderID != nil && a.ProviderReminderID != nil
}

// TableName specifies the table name for the Patient model
func (Patient) TableName() string {
	return "patient"
}

// TableName specifies the table name for the Appointment model
func (Appointment) TableName() string {
	return "appointment"
}
