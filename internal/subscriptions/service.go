package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/logger"
	"github.com/jfuertes/subman-backend/pkg/pagination"
	"github.com/jfuertes/subman-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type planGetter interface {
	FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Plan, error)
}

type customerGetter interface {
	FindByID(ctx context.Context, clientID, id uuid.UUID) (*models.Customer, error)
}

// eventEmitter enqueues webhook deliveries inside the mutation's transaction,
// so a delivery row only exists once the state change durably commits.
type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, event enums.WebhookEvent, payload any) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry *models.AuditLog) error
}

// Service owns subscription state transitions and billing-date recomputation.
type Service interface {
	Create(ctx context.Context, params CreateParams) (*models.Subscription, error)
	Get(ctx context.Context, clientID, id uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Update(ctx context.Context, params UpdateParams) (*models.Subscription, error)
	Pause(ctx context.Context, clientID, id uuid.UUID) (*models.Subscription, error)
	Resume(ctx context.Context, clientID, id uuid.UUID) (*models.Subscription, error)
	Cancel(ctx context.Context, params CancelParams) (*models.Subscription, error)
	Delete(ctx context.Context, clientID, id uuid.UUID) error
	EndingSoon(ctx context.Context, clientID uuid.UUID, withinDays int) ([]models.Subscription, error)
	ExpiredSince(ctx context.Context, clientID uuid.UUID, withinDays int) ([]models.Subscription, error)
	EvaluateExpirations(ctx context.Context, clientID *uuid.UUID, now time.Time) (EvaluationResult, error)
}

type service struct {
	repo      Repository
	plans     planGetter
	customers customerGetter
	tx        txRunner
	emitter   eventEmitter
	audit     auditRecorder
	logg      *logger.Logger
	now       func() time.Time
}

// ServiceParams wires subscription service dependencies.
type ServiceParams struct {
	Repo      Repository
	Plans     planGetter
	Customers customerGetter
	TxRunner  txRunner
	Emitter   eventEmitter
	Audit     auditRecorder
	Logger    *logger.Logger
	Now       func() time.Time
}

// NewService validates dependencies and builds the lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscriptions repository required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "plan getter required")
	}
	if params.Customers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "customer getter required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "event emitter required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		plans:     params.Plans,
		customers: params.Customers,
		tx:        params.TxRunner,
		emitter:   params.Emitter,
		audit:     params.Audit,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// CreateParams carries subscription creation input. Status defaults to ACTIVE
// and AutoRenew to true when omitted.
type CreateParams struct {
	ClientID   uuid.UUID
	CustomerID uuid.UUID
	PlanID     uuid.UUID
	StartDate  time.Time
	EndDate    *time.Time
	Status     *enums.SubscriptionStatus
	AutoRenew  *bool
}

// ListParams filters the tenant's subscriptions.
type ListParams struct {
	ClientID   uuid.UUID
	CustomerID *uuid.UUID
	Status     *enums.SubscriptionStatus
	Page       pagination.Params
}

// ListResult wraps a page of subscriptions with pagination metadata.
type ListResult struct {
	Items []models.Subscription
	Meta  *types.PaginationMeta
}

// UpdateParams patches record-keeping fields. It never recomputes the billing
// date; that only happens through resume and the expiration evaluator.
type UpdateParams struct {
	ClientID     uuid.UUID
	ID           uuid.UUID
	AutoRenew    *bool
	EndDate      *time.Time
	CancelReason *string
}

// CancelParams carries the optional cancel reason.
type CancelParams struct {
	ClientID uuid.UUID
	ID       uuid.UUID
	Reason   *string
}

// EvaluationResult reports what one expiration scan did.
type EvaluationResult struct {
	Checked int `json:"checked"`
	Renewed int `json:"renewed"`
	Expired int `json:"expired"`
}

func (s *service) Create(ctx context.Context, params CreateParams) (*models.Subscription, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if params.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if params.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id required")
	}
	if params.StartDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start date required")
	}

	status := enums.SubscriptionStatusActive
	if params.Status != nil {
		if *params.Status != enums.SubscriptionStatusActive && *params.Status != enums.SubscriptionStatusTrialing {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriptions start as ACTIVE or TRIALING")
		}
		status = *params.Status
	}
	autoRenew := true
	if params.AutoRenew != nil {
		autoRenew = *params.AutoRenew
	}

	plan, err := s.plans.FindByID(ctx, params.ClientID, params.PlanID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	if plan == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}
	customer, err := s.customers.FindByID(ctx, params.ClientID, params.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	if customer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}

	nextBilling, err := AddInterval(params.StartDate, plan.Interval, plan.IntervalCount)
	if err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		ClientID:        params.ClientID,
		CustomerID:      params.CustomerID,
		PlanID:          params.PlanID,
		Status:          status,
		StartDate:       params.StartDate,
		EndDate:         params.EndDate,
		AutoRenew:       autoRenew,
		NextBillingDate: nextBilling,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
		}
		if err := s.emitter.Emit(ctx, tx, sub.ClientID, enums.EventSubscriptionCreated, sub); err != nil {
			return err
		}
		s.recordAudit(ctx, tx, sub, enums.AuditSubscriptionCreate)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) Get(ctx context.Context, clientID, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.load(ctx, s.repo, clientID, id)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.ClientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	items, total, err := s.repo.List(ctx, listSubscriptionsParams{
		ClientID:   params.ClientID,
		CustomerID: params.CustomerID,
		Status:     params.Status,
		Page:       params.Page,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	return &ListResult{Items: items, Meta: pagination.Meta(total, params.Page)}, nil
}

func (s *service) Update(ctx context.Context, params UpdateParams) (*models.Subscription, error) {
	var updated *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, params.ClientID, params.ID)
		if err != nil {
			return err
		}

		if params.AutoRenew != nil {
			sub.AutoRenew = *params.AutoRenew
		}
		if params.EndDate != nil {
			sub.EndDate = params.EndDate
		}
		if params.CancelReason != nil {
			sub.CancelReason = params.CancelReason
		}

		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
		}
		if err := s.emitter.Emit(ctx, tx, sub.ClientID, enums.EventSubscriptionUpdated, sub); err != nil {
			return err
		}
		s.recordAudit(ctx, tx, sub, enums.AuditSubscriptionUpdate)
		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Pause(ctx context.Context, clientID, id uuid.UUID) (*models.Subscription, error) {
	var paused *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, clientID, id)
		if err != nil {
			return err
		}
		if sub.Status != enums.SubscriptionStatusActive && sub.Status != enums.SubscriptionStatusTrialing {
			return pkgerrors.New(pkgerrors.CodeConflict, "only active or trialing subscriptions can be paused")
		}

		// Pausing freezes the billing date; resume decides whether to re-anchor.
		sub.Status = enums.SubscriptionStatusPaused
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pause subscription")
		}
		if err := s.emitter.Emit(ctx, tx, sub.ClientID, enums.EventSubscriptionUpdated, sub); err != nil {
			return err
		}
		s.recordAudit(ctx, tx, sub, enums.AuditSubscriptionPause)
		paused = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paused, nil
}

func (s *service) Resume(ctx context.Context, clientID, id uuid.UUID) (*models.Subscription, error) {
	var resumed *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, clientID, id)
		if err != nil {
			return err
		}
		if sub.Status != enums.SubscriptionStatusPaused {
			return pkgerrors.New(pkgerrors.CodeConflict, "subscription is not paused")
		}

		now := s.now()
		if BeforeDay(sub.NextBillingDate, now) {
			// Stale pause: re-anchor billing to the resume date instead of
			// replaying missed cycles.
			plan, err := s.plans.FindByID(ctx, sub.ClientID, sub.PlanID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
			}
			if plan == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
			}
			next, err := AddInterval(now, plan.Interval, plan.IntervalCount)
			if err != nil {
				return err
			}
			sub.NextBillingDate = next
		}
		sub.Status = enums.SubscriptionStatusActive

		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resume subscription")
		}
		if err := s.emitter.Emit(ctx, tx, sub.ClientID, enums.EventSubscriptionUpdated, sub); err != nil {
			return err
		}
		s.recordAudit(ctx, tx, sub, enums.AuditSubscriptionResume)
		resumed = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resumed, nil
}

func (s *service) Cancel(ctx context.Context, params CancelParams) (*models.Subscription, error) {
	var canceled *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, params.ClientID, params.ID)
		if err != nil {
			return err
		}
		if sub.Status == enums.SubscriptionStatusCanceled || sub.Status == enums.SubscriptionStatusExpired {
			return pkgerrors.New(pkgerrors.CodeConflict, "subscription is already terminal")
		}

		now := s.now()
		sub.Status = enums.SubscriptionStatusCanceled
		sub.AutoRenew = false
		if sub.EndDate == nil {
			sub.EndDate = &now
		}
		if params.Reason != nil {
			sub.CancelReason = params.Reason
		}

		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
		}
		if err := s.emitter.Emit(ctx, tx, sub.ClientID, enums.EventSubscriptionCanceled, sub); err != nil {
			return err
		}
		s.recordAudit(ctx, tx, sub, enums.AuditSubscriptionCancel)
		canceled = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return canceled, nil
}

func (s *service) Delete(ctx context.Context, clientID, id uuid.UUID) error {
	if clientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := s.load(ctx, repo, clientID, id)
		if err != nil {
			return err
		}
		found, err := repo.Delete(ctx, clientID, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete subscription")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		s.recordAudit(ctx, tx, sub, enums.AuditSubscriptionDelete)
		return nil
	})
}

func (s *service) EndingSoon(ctx context.Context, clientID uuid.UUID, withinDays int) ([]models.Subscription, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if withinDays < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "window must be at least 1 day")
	}
	from := DayFloor(s.now())
	until := from.AddDate(0, 0, withinDays+1)
	subs, err := s.repo.ListEndingSoon(ctx, clientID, from, until)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ending soon")
	}
	return subs, nil
}

// ExpiredSince reports subscriptions the evaluator expired within the last
// withinDays days, newest first.
func (s *service) ExpiredSince(ctx context.Context, clientID uuid.UUID, withinDays int) ([]models.Subscription, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if withinDays < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "window must be at least 1 day")
	}
	since := DayFloor(s.now()).AddDate(0, 0, -withinDays)
	subs, err := s.repo.ListExpiredSince(ctx, clientID, since)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired")
	}
	return subs, nil
}

// EvaluateExpirations is the batch reconciliation pass. Each subscription is
// handled in its own transaction; one bad row never aborts the scan.
func (s *service) EvaluateExpirations(ctx context.Context, clientID *uuid.UUID, now time.Time) (EvaluationResult, error) {
	subs, err := s.repo.ListForEvaluation(ctx, clientID)
	if err != nil {
		return EvaluationResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "scan subscriptions")
	}

	result := EvaluationResult{}
	for i := range subs {
		sub := subs[i]
		result.Checked++

		switch {
		case sub.EndDate != nil && BeforeDay(*sub.EndDate, now):
			// Hard stop takes precedence over renewal.
			if err := s.expire(ctx, &sub); err != nil {
				s.logError(ctx, err, sub.ID, "expire subscription")
				continue
			}
			result.Expired++

		case BeforeDay(sub.NextBillingDate, now):
			if !sub.AutoRenew {
				if err := s.expire(ctx, &sub); err != nil {
					s.logError(ctx, err, sub.ID, "expire subscription")
					continue
				}
				result.Expired++
				continue
			}
			if sub.Status != enums.SubscriptionStatusActive {
				continue
			}
			if err := s.renew(ctx, &sub, now); err != nil {
				s.logError(ctx, err, sub.ID, "renew subscription")
				continue
			}
			result.Renewed++
		}
	}
	return result, nil
}

func (s *service) expire(ctx context.Context, sub *models.Subscription) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sub.Status = enums.SubscriptionStatusExpired
		if err := s.repo.WithTx(tx).Save(ctx, sub); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, sub.ClientID, enums.EventSubscriptionExpired, sub)
	})
}

func (s *service) renew(ctx context.Context, sub *models.Subscription, now time.Time) error {
	plan, err := s.plans.FindByID(ctx, sub.ClientID, sub.PlanID)
	if err != nil {
		return err
	}
	if plan == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
	}

	// Advance from the stored date, not from today, so the anchor day of the
	// cycle is preserved. Loop to catch up multiple missed periods.
	next := sub.NextBillingDate
	for BeforeDay(next, now) {
		next, err = AddInterval(next, plan.Interval, plan.IntervalCount)
		if err != nil {
			return err
		}
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		sub.NextBillingDate = next
		if err := s.repo.WithTx(tx).Save(ctx, sub); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, sub.ClientID, enums.EventSubscriptionRenewed, sub)
	})
}

// load fetches a tenant-scoped subscription, mapping absence and cross-tenant
// access to the same NotFound.
func (s *service) load(ctx context.Context, repo Repository, clientID, id uuid.UUID) (*models.Subscription, error) {
	if clientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client id required")
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	sub, err := repo.FindByID(ctx, clientID, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func (s *service) recordAudit(ctx context.Context, tx *gorm.DB, sub *models.Subscription, action enums.AuditAction) {
	if s.audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{"status": sub.Status, "nextBillingDate": sub.NextBillingDate})
	entry := &models.AuditLog{
		ClientID:  sub.ClientID,
		ActorType: enums.AuditActorUser,
		Action:    action,
		Entity:    "subscription",
		EntityID:  sub.ID,
		Metadata:  meta,
	}
	if err := s.audit.Record(ctx, tx, entry); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "audit record failed: "+err.Error())
	}
}

func (s *service) logError(ctx context.Context, err error, subID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithField(ctx, "subscription_id", subID.String())
	s.logg.Error(ctx, msg, err)
}
