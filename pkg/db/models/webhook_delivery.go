package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/enums"
)

// WebhookDelivery is one durable outbound notification. Payload and Signature
// are fixed at creation; retries resend the identical bytes so the signature
// stays valid.
type WebhookDelivery struct {
	ID           uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID     uuid.UUID            `gorm:"column:client_id;type:uuid;not null;index" json:"clientId"`
	EndpointID   uuid.UUID            `gorm:"column:endpoint_id;type:uuid;not null;index" json:"endpointId"`
	Event        enums.WebhookEvent   `gorm:"column:event;not null" json:"event"`
	Payload      string               `gorm:"column:payload;not null" json:"payload"`
	Signature    string               `gorm:"column:signature;not null" json:"signature"`
	Status       enums.DeliveryStatus `gorm:"column:status;not null;default:'PENDING';index" json:"status"`
	AttemptCount int                  `gorm:"column:attempt_count;not null;default:0" json:"attemptCount"`
	LastError    *string              `gorm:"column:last_error" json:"lastError,omitempty"`
	NextRetryAt  time.Time            `gorm:"column:next_retry_at;not null;index" json:"nextRetryAt"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (d *WebhookDelivery) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
