package plans

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/pagination"
	"github.com/jfuertes/subman-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry *models.AuditLog) error
}

// Service manages tenant billing plans.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.Plan, error)
	Get(ctx context.Context, clientID, id uuid.UUID) (*models.Plan, error)
	FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Plan, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, params UpdateParams) (*models.Plan, error)
	Delete(ctx context.Context, clientID, id uuid.UUID) error
}

type service struct {
	repo  Repository
	tx    txRunner
	audit auditRecorder
}

// NewService wires plan dependencies.
func NewService(repo Repository, tx txRunner, audit auditRecorder) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "plans repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, tx: tx, audit: audit}, nil
}

// CreateParams carries plan creation input.
type CreateParams struct {
	ClientID      uuid.UUID
	Name          string
	Price         decimal.Decimal
	Currency      string
	Interval      enums.PlanInterval
	IntervalCount int
	Description   *string
}

// ListParams filters the tenant's plans.
type ListParams struct {
	ClientID   uuid.UUID
	ActiveOnly bool
	Page       pagination.Params
}

// ListResult wraps a page of plans with pagination metadata.
type ListResult struct {
	Items []models.Plan
	Meta  *types.PaginationMeta
}

// UpdateParams patches administrative plan fields. Billing math reads the
// updated interval from the next recompute onward.
type UpdateParams struct {
	ClientID      uuid.UUID
	ID            uuid.UUID
	Name          *string
	Price         *decimal.Decimal
	Description   *string
	IsActive      *bool
	Interval      *enums.PlanInterval
	IntervalCount *int
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Plan, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if params.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan name required")
	}
	if !params.Interval.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan interval")
	}
	if params.IntervalCount < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "interval count must be at least 1")
	}
	if params.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}

	plan := &models.Plan{
		ClientID:      params.ClientID,
		Name:          params.Name,
		Price:         params.Price,
		Currency:      params.Currency,
		Interval:      params.Interval,
		IntervalCount: params.IntervalCount,
		Description:   params.Description,
		IsActive:      true,
	}
	if plan.Currency == "" {
		plan.Currency = "PHP"
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, plan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create plan")
		}
		s.recordAudit(ctx, tx, plan, enums.AuditPlanCreate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *service) Get(ctx context.Context, clientID, id uuid.UUID) (*models.Plan, error) {
	plan, err := s.FindByID(ctx, clientID, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	return plan, nil
}

// FindByID returns nil without error when the plan is absent, for callers that
// map absence themselves.
func (s *service) FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Plan, error) {
	if clientID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id and plan id required")
	}
	plan, err := s.repo.FindByID(ctx, clientID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	return plan, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	items, total, err := s.repo.List(ctx, listPlansParams{
		ClientID:   params.ClientID,
		ActiveOnly: params.ActiveOnly,
		Page:       params.Page,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	return &ListResult{Items: items, Meta: pagination.Meta(total, params.Page)}, nil
}

func (s *service) Update(ctx context.Context, params UpdateParams) (*models.Plan, error) {
	var updated *models.Plan
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		plan, err := repo.FindByID(ctx, params.ClientID, params.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
		}
		if plan == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}

		if params.Name != nil {
			plan.Name = *params.Name
		}
		if params.Price != nil {
			if params.Price.IsNegative() {
				return pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
			}
			plan.Price = *params.Price
		}
		if params.Description != nil {
			plan.Description = params.Description
		}
		if params.IsActive != nil {
			plan.IsActive = *params.IsActive
		}
		if params.Interval != nil {
			if !params.Interval.IsValid() {
				return pkgerrors.New(pkgerrors.CodeValidation, "invalid plan interval")
			}
			plan.Interval = *params.Interval
		}
		if params.IntervalCount != nil {
			if *params.IntervalCount < 1 {
				return pkgerrors.New(pkgerrors.CodeValidation, "interval count must be at least 1")
			}
			plan.IntervalCount = *params.IntervalCount
		}

		if err := repo.Save(ctx, plan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update plan")
		}
		s.recordAudit(ctx, tx, plan, enums.AuditPlanUpdate)
		updated = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, clientID, id uuid.UUID) error {
	if clientID == uuid.Nil || id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id and plan id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		plan, err := repo.FindByID(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
		}
		if plan == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}

		count, err := repo.CountSubscriptions(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count plan subscriptions")
		}
		if count > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "plan has subscriptions; deactivate it instead")
		}

		found, err := repo.Delete(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete plan")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		s.recordAudit(ctx, tx, plan, enums.AuditPlanDelete)
		return nil
	})
}

func (s *service) recordAudit(ctx context.Context, tx *gorm.DB, plan *models.Plan, action enums.AuditAction) {
	if s.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"name": plan.Name, "interval": plan.Interval, "intervalCount": plan.IntervalCount})
	_ = s.audit.Record(ctx, tx, &models.AuditLog{
		ClientID:  plan.ClientID,
		ActorType: enums.AuditActorUser,
		Action:    action,
		Entity:    "plan",
		EntityID:  plan.ID,
		Metadata:  meta,
	})
}
