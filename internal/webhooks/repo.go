package webhooks

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

// Repository exposes persistence helpers for webhook endpoints and deliveries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateEndpoint(ctx context.Context, endpoint *models.WebhookEndpoint) error
	FindEndpointByID(ctx context.Context, clientID, id uuid.UUID) (*models.WebhookEndpoint, error)
	ListEndpoints(ctx context.Context, clientID uuid.UUID, page pagination.Params) ([]models.WebhookEndpoint, int64, error)
	ListActiveEndpoints(ctx context.Context, clientID uuid.UUID) ([]models.WebhookEndpoint, error)
	SaveEndpoint(ctx context.Context, endpoint *models.WebhookEndpoint) error
	DeleteEndpoint(ctx context.Context, clientID, id uuid.UUID) (bool, error)

	CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	FindDueDeliveries(ctx context.Context, now time.Time, limit int) ([]DueDelivery, error)
	SaveDelivery(ctx context.Context, delivery *models.WebhookDelivery) error
	ListDeliveries(ctx context.Context, params listDeliveriesParams) ([]models.WebhookDelivery, int64, error)
}

// DueDelivery pairs a pending delivery with its endpoint for dispatch.
type DueDelivery struct {
	Delivery models.WebhookDelivery
	Endpoint models.WebhookEndpoint
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a webhooks repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listDeliveriesParams struct {
	ClientID   uuid.UUID
	EndpointID *uuid.UUID
	Status     *enums.DeliveryStatus
	Page       pagination.Params
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateEndpoint(ctx context.Context, endpoint *models.WebhookEndpoint) error {
	return r.db.WithContext(ctx).Create(endpoint).Error
}

func (r *repositoryImpl) FindEndpointByID(ctx context.Context, clientID, id uuid.UUID) (*models.WebhookEndpoint, error) {
	var endpoint models.WebhookEndpoint
	err := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, clientID).
		First(&endpoint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &endpoint, nil
}

func (r *repositoryImpl) ListEndpoints(ctx context.Context, clientID uuid.UUID, page pagination.Params) ([]models.WebhookEndpoint, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.WebhookEndpoint{}).
		Where("client_id = ?", clientID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	normalized := page.Normalize()
	var endpoints []models.WebhookEndpoint
	err := query.
		Order("created_at DESC").
		Limit(normalized.Limit).
		Offset(normalized.Offset()).
		Find(&endpoints).Error
	if err != nil {
		return nil, 0, err
	}
	return endpoints, total, nil
}

func (r *repositoryImpl) ListActiveEndpoints(ctx context.Context, clientID uuid.UUID) ([]models.WebhookEndpoint, error) {
	var endpoints []models.WebhookEndpoint
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND is_active = ?", clientID, true).
		Find(&endpoints).Error
	if err != nil {
		return nil, err
	}
	return endpoints, nil
}

func (r *repositoryImpl) SaveEndpoint(ctx context.Context, endpoint *models.WebhookEndpoint) error {
	return r.db.WithContext(ctx).Save(endpoint).Error
}

func (r *repositoryImpl) DeleteEndpoint(ctx context.Context, clientID, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", id, clientID).
		Delete(&models.WebhookEndpoint{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

// FindDueDeliveries selects the oldest pending deliveries whose retry time has
// passed, paired with their endpoints. FIFO ordering keeps a backlog fair.
func (r *repositoryImpl) FindDueDeliveries(ctx context.Context, now time.Time, limit int) ([]DueDelivery, error) {
	var deliveries []models.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", enums.DeliveryStatusPending, now).
		Order("created_at ASC").
		Limit(limit).
		Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	if len(deliveries) == 0 {
		return nil, nil
	}

	endpointIDs := make([]uuid.UUID, 0, len(deliveries))
	for _, d := range deliveries {
		endpointIDs = append(endpointIDs, d.EndpointID)
	}
	var endpoints []models.WebhookEndpoint
	if err := r.db.WithContext(ctx).Where("id IN ?", endpointIDs).Find(&endpoints).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.WebhookEndpoint, len(endpoints))
	for _, e := range endpoints {
		byID[e.ID] = e
	}

	due := make([]DueDelivery, 0, len(deliveries))
	for _, d := range deliveries {
		endpoint, ok := byID[d.EndpointID]
		if !ok {
			continue
		}
		due = append(due, DueDelivery{Delivery: d, Endpoint: endpoint})
	}
	return due, nil
}

func (r *repositoryImpl) SaveDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	return r.db.WithContext(ctx).Save(delivery).Error
}

func (r *repositoryImpl) ListDeliveries(ctx context.Context, params listDeliveriesParams) ([]models.WebhookDelivery, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.WebhookDelivery{}).
		Where("client_id = ?", params.ClientID)
	if params.EndpointID != nil {
		query = query.Where("endpoint_id = ?", *params.EndpointID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := params.Page.Normalize()
	var deliveries []models.WebhookDelivery
	err := query.
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&deliveries).Error
	if err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}
