package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/enums"
)

// Plan is the tenant-scoped billing template subscriptions reference.
// Billing math always reads interval/interval_count from the plan row at
// recompute time, so administrative edits apply from the next cycle onward.
type Plan struct {
	ID            uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID      uuid.UUID          `gorm:"column:client_id;type:uuid;not null;index" json:"clientId"`
	Name          string             `gorm:"column:name;not null" json:"name"`
	Price         decimal.Decimal    `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Currency      string             `gorm:"column:currency;not null;default:'PHP'" json:"currency"`
	Interval      enums.PlanInterval `gorm:"column:interval;not null" json:"interval"`
	IntervalCount int                `gorm:"column:interval_count;not null;default:1" json:"intervalCount"`
	Description   *string            `gorm:"column:description" json:"description,omitempty"`
	IsActive      bool               `gorm:"column:is_active;not null;default:true" json:"isActive"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (p *Plan) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
