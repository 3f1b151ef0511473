package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
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

// Service manages webhook endpoint configuration and event fan-out.
type Service interface {
	CreateEndpoint(ctx context.Context, params CreateEndpointParams) (*models.WebhookEndpoint, error)
	GetEndpoint(ctx context.Context, clientID, id uuid.UUID) (*models.WebhookEndpoint, error)
	ListEndpoints(ctx context.Context, clientID uuid.UUID, page pagination.Params) (*EndpointListResult, error)
	UpdateEndpoint(ctx context.Context, params UpdateEndpointParams) (*models.WebhookEndpoint, error)
	DeleteEndpoint(ctx context.Context, clientID, id uuid.UUID) error
	ListDeliveries(ctx context.Context, params ListDeliveriesParams) (*DeliveryListResult, error)

	// Emit fans one event out to every active, subscribed endpoint of the
	// tenant as durable PENDING delivery rows. It performs no network I/O.
	Emit(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, event enums.WebhookEvent, payload any) error
}

type service struct {
	repo  Repository
	tx    txRunner
	audit auditRecorder
	now   func() time.Time
}

// ServiceParams wires webhook service dependencies.
type ServiceParams struct {
	Repo     Repository
	TxRunner txRunner
	Audit    auditRecorder
	Now      func() time.Time
}

// NewService validates dependencies and builds the webhook service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhooks repository required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: params.Repo, tx: params.TxRunner, audit: params.Audit, now: now}, nil
}

// CreateEndpointParams carries endpoint registration input.
type CreateEndpointParams struct {
	ClientID uuid.UUID
	URL      string
	Secret   string
	Events   []string
}

// UpdateEndpointParams patches endpoint configuration.
type UpdateEndpointParams struct {
	ClientID uuid.UUID
	ID       uuid.UUID
	URL      *string
	Secret   *string
	Events   []string
	IsActive *bool
}

// EndpointListResult wraps a page of endpoints with pagination metadata.
type EndpointListResult struct {
	Items []models.WebhookEndpoint
	Meta  *types.PaginationMeta
}

// ListDeliveriesParams filters a tenant's delivery records.
type ListDeliveriesParams struct {
	ClientID   uuid.UUID
	EndpointID *uuid.UUID
	Status     *enums.DeliveryStatus
	Page       pagination.Params
}

// DeliveryListResult wraps a page of deliveries with pagination metadata.
type DeliveryListResult struct {
	Items []models.WebhookDelivery
	Meta  *types.PaginationMeta
}

// eventEnvelope is the body POSTed to endpoints. Field order is fixed so the
// serialized bytes, and therefore the signature, are deterministic.
type eventEnvelope struct {
	Event     string    `json:"event"`
	ClientID  uuid.UUID `json:"clientId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

func (s *service) CreateEndpoint(ctx context.Context, params CreateEndpointParams) (*models.WebhookEndpoint, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if err := validateEndpointURL(params.URL); err != nil {
		return nil, err
	}
	if params.Secret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "endpoint secret required")
	}
	events, err := normalizeEvents(params.Events)
	if err != nil {
		return nil, err
	}

	endpoint := &models.WebhookEndpoint{
		ClientID: params.ClientID,
		URL:      params.URL,
		Secret:   params.Secret,
		Events:   events,
		IsActive: true,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateEndpoint(ctx, endpoint); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create webhook endpoint")
		}
		s.recordAudit(ctx, tx, endpoint, enums.AuditWebhookCreate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return endpoint, nil
}

func (s *service) GetEndpoint(ctx context.Context, clientID, id uuid.UUID) (*models.WebhookEndpoint, error) {
	if clientID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id and endpoint id required")
	}
	endpoint, err := s.repo.FindEndpointByID(ctx, clientID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook endpoint")
	}
	if endpoint == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "webhook endpoint not found")
	}
	return endpoint, nil
}

func (s *service) ListEndpoints(ctx context.Context, clientID uuid.UUID, page pagination.Params) (*EndpointListResult, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	items, total, err := s.repo.ListEndpoints(ctx, clientID, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhook endpoints")
	}
	return &EndpointListResult{Items: items, Meta: pagination.Meta(total, page)}, nil
}

func (s *service) UpdateEndpoint(ctx context.Context, params UpdateEndpointParams) (*models.WebhookEndpoint, error) {
	var updated *models.WebhookEndpoint
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		endpoint, err := repo.FindEndpointByID(ctx, params.ClientID, params.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook endpoint")
		}
		if endpoint == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "webhook endpoint not found")
		}

		if params.URL != nil {
			if err := validateEndpointURL(*params.URL); err != nil {
				return err
			}
			endpoint.URL = *params.URL
		}
		if params.Secret != nil {
			if *params.Secret == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "endpoint secret required")
			}
			endpoint.Secret = *params.Secret
		}
		if params.Events != nil {
			events, err := normalizeEvents(params.Events)
			if err != nil {
				return err
			}
			endpoint.Events = events
		}
		if params.IsActive != nil {
			endpoint.IsActive = *params.IsActive
		}

		if err := repo.SaveEndpoint(ctx, endpoint); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update webhook endpoint")
		}
		s.recordAudit(ctx, tx, endpoint, enums.AuditWebhookUpdate)
		updated = endpoint
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) DeleteEndpoint(ctx context.Context, clientID, id uuid.UUID) error {
	if clientID == uuid.Nil || id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id and endpoint id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		endpoint, err := repo.FindEndpointByID(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook endpoint")
		}
		if endpoint == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "webhook endpoint not found")
		}
		found, err := repo.DeleteEndpoint(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete webhook endpoint")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "webhook endpoint not found")
		}
		s.recordAudit(ctx, tx, endpoint, enums.AuditWebhookDelete)
		return nil
	})
}

func (s *service) ListDeliveries(ctx context.Context, params ListDeliveriesParams) (*DeliveryListResult, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery status filter")
	}
	items, total, err := s.repo.ListDeliveries(ctx, listDeliveriesParams{
		ClientID:   params.ClientID,
		EndpointID: params.EndpointID,
		Status:     params.Status,
		Page:       params.Page,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhook deliveries")
	}
	return &DeliveryListResult{Items: items, Meta: pagination.Meta(total, params.Page)}, nil
}

func (s *service) Emit(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, event enums.WebhookEvent, payload any) error {
	if clientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if !event.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown webhook event "+string(event))
	}

	repo := s.repo.WithTx(tx)
	endpoints, err := repo.ListActiveEndpoints(ctx, clientID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active endpoints")
	}

	now := s.now()
	for _, endpoint := range endpoints {
		if !endpoint.SubscribedTo(string(event)) {
			continue
		}

		envelope := eventEnvelope{
			Event:     publicEventName(event),
			ClientID:  clientID,
			Timestamp: now,
			Data:      payload,
		}
		serialized, err := json.Marshal(envelope)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "serialize webhook payload")
		}

		delivery := &models.WebhookDelivery{
			ClientID:    clientID,
			EndpointID:  endpoint.ID,
			Event:       event,
			Payload:     string(serialized),
			Signature:   Sign(endpoint.Secret, serialized),
			Status:      enums.DeliveryStatusPending,
			NextRetryAt: now,
		}
		if err := repo.CreateDelivery(ctx, delivery); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue webhook delivery")
		}
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of body under the endpoint secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// publicEventName converts the stored event name to the dotted form receivers
// see, e.g. subscription_created -> subscription.created.
func publicEventName(event enums.WebhookEvent) string {
	return strings.Replace(string(event), "_", ".", 1)
}

func validateEndpointURL(raw string) error {
	if raw == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "endpoint url required")
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return pkgerrors.New(pkgerrors.CodeValidation, "endpoint url must be absolute http(s)")
	}
	return nil
}

func normalizeEvents(events []string) (string, error) {
	if len(events) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "at least one event required")
	}
	cleaned := make([]string, 0, len(events))
	for _, event := range events {
		trimmed := strings.TrimSpace(event)
		if trimmed == "" {
			continue
		}
		if _, err := enums.ParseWebhookEvent(trimmed); err != nil {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "unknown event "+trimmed).
				WithDetails(map[string]any{"known": enums.WebhookEvents()})
		}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "at least one event required")
	}
	return strings.Join(cleaned, ","), nil
}

func (s *service) recordAudit(ctx context.Context, tx *gorm.DB, endpoint *models.WebhookEndpoint, action enums.AuditAction) {
	if s.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"url": endpoint.URL, "events": endpoint.Events})
	_ = s.audit.Record(ctx, tx, &models.AuditLog{
		ClientID:  endpoint.ClientID,
		ActorType: enums.AuditActorUser,
		Action:    action,
		Entity:    "webhook_endpoint",
		EntityID:  endpoint.ID,
		Metadata:  meta,
	})
}
