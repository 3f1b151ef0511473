package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/enums"
)

// Subscription is the entity under lifecycle control. NextBillingDate is
// recomputed only by the lifecycle service; callers never set it directly
// after creation.
type Subscription struct {
	ID              uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID        uuid.UUID                `gorm:"column:client_id;type:uuid;not null;index" json:"clientId"`
	CustomerID      uuid.UUID                `gorm:"column:customer_id;type:uuid;not null;index" json:"customerId"`
	PlanID          uuid.UUID                `gorm:"column:plan_id;type:uuid;not null;index" json:"planId"`
	Status          enums.SubscriptionStatus `gorm:"column:status;not null;default:'ACTIVE'" json:"status"`
	StartDate       time.Time                `gorm:"column:start_date;not null" json:"startDate"`
	EndDate         *time.Time               `gorm:"column:end_date" json:"endDate,omitempty"`
	AutoRenew       bool                     `gorm:"column:auto_renew;not null;default:true" json:"autoRenew"`
	NextBillingDate time.Time                `gorm:"column:next_billing_date;not null" json:"nextBillingDate"`
	CancelReason    *string                  `gorm:"column:cancel_reason" json:"cancelReason,omitempty"`
	CreatedAt       time.Time                `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
