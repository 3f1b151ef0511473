package customers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db"
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

// Service manages tenant customers.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.Customer, error)
	Get(ctx context.Context, clientID, id uuid.UUID) (*models.Customer, error)
	FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Customer, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, params UpdateParams) (*models.Customer, error)
	Delete(ctx context.Context, clientID, id uuid.UUID) error
}

type service struct {
	repo  Repository
	tx    txRunner
	audit auditRecorder
}

// NewService wires customer dependencies.
func NewService(repo Repository, tx txRunner, audit auditRecorder) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "customers repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, tx: tx, audit: audit}, nil
}

// CreateParams carries customer creation input.
type CreateParams struct {
	ClientID uuid.UUID
	Name     string
	Email    string
	Phone    *string
	Notes    *string
}

// ListParams filters the tenant's customers.
type ListParams struct {
	ClientID uuid.UUID
	Search   string
	Page     pagination.Params
}

// ListResult wraps a page of customers with pagination metadata.
type ListResult struct {
	Items []models.Customer
	Meta  *types.PaginationMeta
}

// UpdateParams patches customer fields.
type UpdateParams struct {
	ClientID uuid.UUID
	ID       uuid.UUID
	Name     *string
	Email    *string
	Phone    *string
	Notes    *string
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Customer, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if params.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if params.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}

	customer := &models.Customer{
		ClientID: params.ClientID,
		Name:     params.Name,
		Email:    params.Email,
		Phone:    params.Phone,
		Notes:    params.Notes,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, customer); err != nil {
			if db.IsUniqueViolation(err, "uq_customers_client_email") {
				return pkgerrors.New(pkgerrors.CodeConflict, "a customer with this email already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
		}
		s.recordAudit(ctx, tx, customer, enums.AuditCustomerCreate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *service) Get(ctx context.Context, clientID, id uuid.UUID) (*models.Customer, error) {
	customer, err := s.FindByID(ctx, clientID, id)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	return customer, nil
}

// FindByID returns nil without error when the customer is absent.
func (s *service) FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Customer, error) {
	if clientID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id and customer id required")
	}
	customer, err := s.repo.FindByID(ctx, clientID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	items, total, err := s.repo.List(ctx, listCustomersParams{
		ClientID: params.ClientID,
		Search:   params.Search,
		Page:     params.Page,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customers")
	}
	return &ListResult{Items: items, Meta: pagination.Meta(total, params.Page)}, nil
}

func (s *service) Update(ctx context.Context, params UpdateParams) (*models.Customer, error) {
	var updated *models.Customer
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		customer, err := repo.FindByID(ctx, params.ClientID, params.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
		}
		if customer == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}

		if params.Name != nil {
			customer.Name = *params.Name
		}
		if params.Email != nil {
			customer.Email = *params.Email
		}
		if params.Phone != nil {
			customer.Phone = params.Phone
		}
		if params.Notes != nil {
			customer.Notes = params.Notes
		}

		if err := repo.Save(ctx, customer); err != nil {
			if db.IsUniqueViolation(err, "uq_customers_client_email") {
				return pkgerrors.New(pkgerrors.CodeConflict, "a customer with this email already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update customer")
		}
		s.recordAudit(ctx, tx, customer, enums.AuditCustomerUpdate)
		updated = customer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, clientID, id uuid.UUID) error {
	if clientID == uuid.Nil || id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id and customer id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		customer, err := repo.FindByID(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
		}
		if customer == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}

		count, err := repo.CountSubscriptions(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count customer subscriptions")
		}
		if count > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "customer has subscriptions")
		}

		found, err := repo.Delete(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete customer")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		s.recordAudit(ctx, tx, customer, enums.AuditCustomerDelete)
		return nil
	})
}

func (s *service) recordAudit(ctx context.Context, tx *gorm.DB, customer *models.Customer, action enums.AuditAction) {
	if s.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"email": customer.Email})
	_ = s.audit.Record(ctx, tx, &models.AuditLog{
		ClientID:  customer.ClientID,
		ActorType: enums.AuditActorUser,
		Action:    action,
		Entity:    "customer",
		EntityID:  customer.ID,
		Metadata:  meta,
	})
}
