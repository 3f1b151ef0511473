package plans

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	"github.com/jfuertes/subman-backend/pkg/pagination"
)

// Repository exposes persistence helpers for plans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, plan *models.Plan) error
	FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Plan, error)
	List(ctx context.Context, params listPlansParams) ([]models.Plan, int64, error)
	Save(ctx context.Context, plan *models.Plan) error
	Delete(ctx context.Context, clientID, id uuid.UUID) (bool, error)
	CountSubscriptions(ctx context.Context, planID uuid.UUID) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a plans repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listPlansParams struct {
	ClientID   uuid.UUID
	ActiveOnly bool
	Page       pagination.Params
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, clientID).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listPlansParams) ([]models.Plan, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Plan{}).
		Where("client_id = ?", params.ClientID)
	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := params.Page.Normalize()
	var plans []models.Plan
	err := query.
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&plans).Error
	if err != nil {
		return nil, 0, err
	}
	return plans, total, nil
}

func (r *repositoryImpl) Save(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, clientID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, clientID).
		Delete(&models.Plan{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CountSubscriptions(ctx context.Context, planID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("plan_id = ?", planID).
		Count(&count).Error
	return count, err
}
