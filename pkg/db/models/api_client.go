package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// APIClient holds a tenant credential. Only the SHA-256 hash of the issued
// key is stored; the plaintext key is returned once at creation.
type APIClient struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID   uuid.UUID `gorm:"column:client_id;type:uuid;not null;index" json:"clientId"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	APIKeyHash string    `gorm:"column:api_key_hash;not null;uniqueIndex" json:"-"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true" json:"isActive"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (c *APIClient) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
