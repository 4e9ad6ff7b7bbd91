package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PushSubscription is one browser/device registration for web push.
// (UserID, Endpoint) is unique.
type PushSubscription struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:64;not null;uniqueIndex:idx_push_subscription_user_endpoint" json:"user_id"`
	Endpoint  string    `gorm:"size:1024;not null;uniqueIndex:idx_push_subscription_user_endpoint" json:"endpoint"`
	P256dh    string    `gorm:"column:p256dh;type:text;not null" json:"p256dh"` // client public key
	Auth      string    `gorm:"type:text;not null" json:"auth"`                 // auth secret
	UserAgent string    `gorm:"type:text" json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns an id when the caller did not
func (p *PushSubscription) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// TableName specifies the table name for the PushSubscription model
func (PushSubscription) TableName() string {
	return "push_subscription"
}

// SubscribeRequest is the browser's PushSubscription.toJSON() plus its user agent
type SubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
	UserAgent string `json:"userAgent"`
}

// UnsubscribeRequest identifies the endpoint to remove
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}
