package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationTypeAppointmentReminder marks reminder records created by the scanner
const NotificationTypeAppointmentReminder = "appointment_reminder"

// Audience is who a reminder is addressed to
type Audience string

const (
	AudiencePatient  Audience = "patient"
	AudienceProvider Audience = "provider"
)

// ReminderData is the structured payload stored with a notification
type ReminderData struct {
	URL             string    `json:"url,omitempty"`
	AppointmentID   string    `json:"appointment_id,omitempty"`
	AppointmentType string    `json:"appointment_type,omitempty"`
	AppointmentTime time.Time `json:"appointment_time,omitempty"`
	Audience        Audience  `json:"audience,omitempty"`
}

// Notification is an in-app notification. Reminders are created ahead of
// time with ScheduledFor and flipped to sent by the drainer.
type Notification struct {
	ID           string                           `gorm:"primaryKey;size:36" json:"id"`
	UserID       string                           `gorm:"size:64;not null;index" json:"user_id"`
	Type         string                           `gorm:"size:50;not null" json:"type"`
	Title        string                           `gorm:"size:255;not null" json:"title"`
	Message      string                           `gorm:"type:text;not null" json:"message"`
	ScheduledFor time.Time                        `gorm:"not null;index" json:"scheduled_for"`
	Data         datatypes.JSONType[ReminderData] `json:"data"`
	ReminderKey  *string                          `gorm:"size:100;uniqueIndex" json:"-"`
	SentAt       *time.Time                       `gorm:"index" json:"sent_at"`
	ReadAt       *time.Time                       `json:"read_at"`
	CreatedAt    time.Time                        `json:"created_at"`
}

// ReminderKey identifies the single reminder an appointment may have per audience
func ReminderKey(appointmentID string, audience Audience) string {
	return fmt.Sprintf("%s:%s", appointmentID, audience)
}

// BeforeCreate assigns an id when the caller did not
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}

// IsSent reports whether the drainer has processed the notification
func (n *Notification) IsSent() bool {
	return n.SentAt != nil
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notification"
}
