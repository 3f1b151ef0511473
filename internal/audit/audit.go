package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/pagination"
	"github.com/jfuertes/subman-backend/pkg/types"
)

// Service records and queries the tenant audit trail.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, entry *models.AuditLog) error
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	db *gorm.DB
}

// NewService returns an audit service bound to the provided database.
func NewService(db *gorm.DB) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "database required")
	}
	return &service{db: db}, nil
}

// ListParams filters the tenant's audit trail.
type ListParams struct {
	ClientID uuid.UUID
	Entity   string
	EntityID *uuid.UUID
	Page     pagination.Params
}

// ListResult wraps a page of audit entries with pagination metadata.
type ListResult struct {
	Items []models.AuditLog
	Meta  *types.PaginationMeta
}

// Record inserts one audit entry, inside tx when provided so the entry commits
// atomically with the mutation it describes.
func (s *service) Record(ctx context.Context, tx *gorm.DB, entry *models.AuditLog) error {
	if entry == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit entry required")
	}
	if entry.ClientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if entry.Action == "" || entry.Entity == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "action and entity required")
	}

	conn := s.db
	if tx != nil {
		conn = tx
	}
	if err := conn.WithContext(ctx).Create(entry).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record audit entry")
	}
	return nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}

	query := s.db.WithContext(ctx).
		Model(&models.AuditLog{}).
		Where("client_id = ?", params.ClientID)
	if params.Entity != "" {
		query = query.Where("entity = ?", params.Entity)
	}
	if params.EntityID != nil {
		query = query.Where("entity_id = ?", *params.EntityID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count audit entries")
	}

	page := params.Page.Normalize()
	var entries []models.AuditLog
	err := query.
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset()).
		Find(&entries).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit entries")
	}
	return &ListResult{Items: entries, Meta: pagination.Meta(total, params.Page)}, nil
}
