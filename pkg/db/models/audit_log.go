package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/enums"
)

// AuditLog records one mutating operation for a tenant.
type AuditLog struct {
	ID        uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID  uuid.UUID            `gorm:"column:client_id;type:uuid;not null;index" json:"clientId"`
	ActorType enums.AuditActorType `gorm:"column:actor_type;not null" json:"actorType"`
	ActorID   *uuid.UUID           `gorm:"column:actor_id;type:uuid" json:"actorId,omitempty"`
	Action    enums.AuditAction    `gorm:"column:action;not null" json:"action"`
	Entity    string               `gorm:"column:entity;not null" json:"entity"`
	EntityID  uuid.UUID            `gorm:"column:entity_id;type:uuid;not null" json:"entityId"`
	Metadata  json.RawMessage      `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (a *AuditLog) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
