package apiclients

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db/models"
)

// Repository exposes persistence helpers for API client credentials.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, client *models.APIClient) error
	FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.APIClient, error)
	FindActiveByKeyHash(ctx context.Context, keyHash string) (*models.APIClient, error)
	List(ctx context.Context, clientID uuid.UUID) ([]models.APIClient, error)
	Save(ctx context.Context, client *models.APIClient) error
	Delete(ctx context.Context, clientID, id uuid.UUID) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an API clients repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, client *models.APIClient) error {
	return r.db.WithContext(ctx).Create(client).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.APIClient, error) {
	var client models.APIClient
	err := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, clientID).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *repositoryImpl) FindActiveByKeyHash(ctx context.Context, keyHash string) (*models.APIClient, error) {
	var client models.APIClient
	err := r.db.WithContext(ctx).
		Where("api_key_hash = ? AND is_active = ?", keyHash, true).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *repositoryImpl) List(ctx context.Context, clientID uuid.UUID) ([]models.APIClient, error) {
	var clients []models.APIClient
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&clients).Error
	if err != nil {
		return nil, err
	}
	return clients, nil
}

func (r *repositoryImpl) Save(ctx context.Context, client *models.APIClient) error {
	return r.db.WithContext(ctx).Save(client).Error
}

func (r *repositoryImpl) Delete(ctx context.Context, clientID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, clientID).
		Delete(&models.APIClient{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
