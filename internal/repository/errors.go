package repository

import "errors"

var (
	// ErrNotificationNotFound indicates that no notification matched the id and owner.
	ErrNotificationNotFound = errors.New("notification not found")
	// ErrAppointmentNotFound indicates that no appointment matched the id.
	ErrAppointmentNotFound = errors.New("appointment not found")
)
