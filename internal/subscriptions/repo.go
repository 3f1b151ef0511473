package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	"github.com/jfuertes/subman-backend/pkg/enums"
	"github.com/jfuertes/subman-backend/pkg/pagination"
)

// Repository exposes persistence helpers for subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, params listSubscriptionsParams) ([]models.Subscription, int64, error)
	Save(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, clientID, id uuid.UUID) (bool, error)
	ListForEvaluation(ctx context.Context, clientID *uuid.UUID) ([]models.Subscription, error)
	ListEndingSoon(ctx context.Context, clientID uuid.UUID, from, until time.Time) ([]models.Subscription, error)
	ListExpiredSince(ctx context.Context, clientID uuid.UUID, since time.Time) ([]models.Subscription, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a subscriptions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listSubscriptionsParams struct {
	ClientID   uuid.UUID
	CustomerID *uuid.UUID
	Status     *enums.SubscriptionStatus
	Page       pagination.Params
}

// evaluationStatuses is the state set the expiration scan considers. EXPIRED
// and PAUSED rows never transition during evaluation.
var evaluationStatuses = []enums.SubscriptionStatus{
	enums.SubscriptionStatusActive,
	enums.SubscriptionStatusCanceled,
	enums.SubscriptionStatusTrialing,
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, clientID).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listSubscriptionsParams) ([]models.Subscription, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("client_id = ?", params.ClientID)
	if params.CustomerID != nil {
		query = query.Where("customer_id = ?", *params.CustomerID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := params.Page.Normalize()
	var subs []models.Subscription
	err := query.
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&subs).Error
	if err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

func (r *repositoryImpl) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, clientID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, clientID).
		Delete(&models.Subscription{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) ListForEvaluation(ctx context.Context, clientID *uuid.UUID) ([]models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("status IN ?", evaluationStatuses)
	if clientID != nil {
		query = query.Where("client_id = ?", *clientID)
	}

	var subs []models.Subscription
	if err := query.Order("created_at ASC").Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repositoryImpl) ListEndingSoon(ctx context.Context, clientID uuid.UUID, from, until time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("client_id = ? AND status = ? AND next_billing_date >= ? AND next_billing_date < ?",
			clientID, enums.SubscriptionStatusActive, from, until).
		Order("next_billing_date ASC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repositoryImpl) ListExpiredSince(ctx context.Context, clientID uuid.UUID, since time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("client_id = ? AND status = ? AND updated_at >= ?",
			clientID, enums.SubscriptionStatusExpired, since).
		Order("updated_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
