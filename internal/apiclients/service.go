package apiclients

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry *models.AuditLog) error
}

// Service manages tenant API credentials and resolves inbound keys.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*CreateResult, error)
	Get(ctx context.Context, clientID, id uuid.UUID) (*models.APIClient, error)
	List(ctx context.Context, clientID uuid.UUID) ([]models.APIClient, error)
	Update(ctx context.Context, params UpdateParams) (*models.APIClient, error)
	Delete(ctx context.Context, clientID, id uuid.UUID) error
	// Authenticate maps a presented plaintext key to its active credential, or
	// nil when the key is unknown or revoked.
	Authenticate(ctx context.Context, apiKey string) (*models.APIClient, error)
}

type service struct {
	repo  Repository
	tx    txRunner
	audit auditRecorder
}

// NewService wires API client dependencies.
func NewService(repo Repository, tx txRunner, audit auditRecorder) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "api clients repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, tx: tx, audit: audit}, nil
}

// CreateParams carries credential creation input.
type CreateParams struct {
	ClientID uuid.UUID
	Name     string
	IsActive *bool
}

// CreateResult returns the stored credential plus the plaintext key, which is
// only available at creation time.
type CreateResult struct {
	Client *models.APIClient `json:"client"`
	APIKey string            `json:"apiKey"`
}

// UpdateParams patches credential fields. The key itself is immutable; rotate
// by creating a new credential and deleting the old one.
type UpdateParams struct {
	ClientID uuid.UUID
	ID       uuid.UUID
	Name     *string
	IsActive *bool
}

func (s *service) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if params.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credential name required")
	}

	plaintext, hash, err := security.GenerateAPIKey()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate api key")
	}

	client := &models.APIClient{
		ClientID:   params.ClientID,
		Name:       params.Name,
		APIKeyHash: hash,
		IsActive:   true,
	}
	if params.IsActive != nil {
		client.IsActive = *params.IsActive
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, client); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create api client")
		}
		s.recordAudit(ctx, tx, client, enums.AuditAPIClientCreate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{Client: client, APIKey: plaintext}, nil
}

func (s *service) Get(ctx context.Context, clientID, id uuid.UUID) (*models.APIClient, error) {
	if clientID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id and credential id required")
	}
	client, err := s.repo.FindByID(ctx, clientID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load api client")
	}
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "api client not found")
	}
	return client, nil
}

func (s *service) List(ctx context.Context, clientID uuid.UUID) ([]models.APIClient, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	clients, err := s.repo.List(ctx, clientID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list api clients")
	}
	return clients, nil
}

func (s *service) Update(ctx context.Context, params UpdateParams) (*models.APIClient, error) {
	var updated *models.APIClient
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		client, err := repo.FindByID(ctx, params.ClientID, params.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load api client")
		}
		if client == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "api client not found")
		}

		if params.Name != nil {
			client.Name = *params.Name
		}
		if params.IsActive != nil {
			client.IsActive = *params.IsActive
		}

		if err := repo.Save(ctx, client); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update api client")
		}
		s.recordAudit(ctx, tx, client, enums.AuditAPIClientUpdate)
		updated = client
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Delete(ctx context.Context, clientID, id uuid.UUID) error {
	if clientID == uuid.Nil || id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id and credential id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		client, err := repo.FindByID(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load api client")
		}
		if client == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "api client not found")
		}
		found, err := repo.Delete(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete api client")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "api client not found")
		}
		s.recordAudit(ctx, tx, client, enums.AuditAPIClientDelete)
		return nil
	})
}

func (s *service) Authenticate(ctx context.Context, apiKey string) (*models.APIClient, error) {
	if !security.LooksLikeAPIKey(apiKey) {
		return nil, nil
	}
	client, err := s.repo.FindActiveByKeyHash(ctx, security.HashAPIKey(apiKey))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up api key")
	}
	return client, nil
}

func (s *service) recordAudit(ctx context.Context, tx *gorm.DB, client *models.APIClient, action enums.AuditAction) {
	if s.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"name": client.Name, "isActive": client.IsActive})
	_ = s.audit.Record(ctx, tx, &models.AuditLog{
		ClientID:  client.ClientID,
		ActorType: enums.AuditActorUser,
		Action:    action,
		Entity:    "api_client",
		EntityID:  client.ID,
		Metadata:  meta,
	})
}
