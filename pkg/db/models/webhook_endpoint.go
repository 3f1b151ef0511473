package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WebhookEndpoint is a tenant-configured HTTP receiver. Events is stored as a
// comma-separated list of subscribed event names.
type WebhookEndpoint struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID  uuid.UUID `gorm:"column:client_id;type:uuid;not null;index" json:"clientId"`
	URL       string    `gorm:"column:url;not null" json:"url"`
	Secret    string    `gorm:"column:secret;not null" json:"-"`
	Events    string    `gorm:"column:events;not null" json:"events"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true" json:"isActive"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (e *WebhookEndpoint) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// SubscribedTo reports whether the endpoint's event list contains event.
func (e WebhookEndpoint) SubscribedTo(event string) bool {
	for _, item := range strings.Split(e.Events, ",") {
		if strings.TrimSpace(item) == event {
			return true
		}
	}
	return false
}
