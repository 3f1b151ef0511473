package subscriptions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/internal/audit"
	"github.com/jfuertes/subman-backend/internal/customers"
	"github.com/jfuertes/subman-backend/internal/plans"
	"github.com/jfuertes/subman-backend/internal/webhooks"
	"github.com/jfuertes/subman-backend/pkg/db/models"
	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
)

func setupLifecycleTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  name TEXT NOT NULL,
  price NUMERIC NOT NULL,
  currency TEXT NOT NULL DEFAULT 'PHP',
  interval TEXT NOT NULL,
  interval_count INTEGER NOT NULL DEFAULT 1,
  description TEXT,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS customers (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  name TEXT NOT NULL,
  email TEXT NOT NULL,
  phone TEXT,
  notes TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  start_date DATETIME NOT NULL,
  end_date DATETIME,
  auto_renew INTEGER NOT NULL DEFAULT 1,
  next_billing_date DATETIME NOT NULL,
  cancel_reason TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS webhook_endpoints (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  url TEXT NOT NULL,
  secret TEXT NOT NULL,
  events TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  endpoint_id TEXT NOT NULL,
  event TEXT NOT NULL,
  payload TEXT NOT NULL,
  signature TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  next_retry_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
  id TEXT PRIMARY KEY,
  client_id TEXT NOT NULL,
  actor_type TEXT NOT NULL,
  actor_id TEXT,
  action TEXT NOT NULL,
  entity TEXT NOT NULL,
  entity_id TEXT NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type lifecycleFixture struct {
	db       *gorm.DB
	service  Service
	clientID uuid.UUID
	customer *models.Customer
	plan     *models.Plan
	now      time.Time
}

func newLifecycleFixture(t *testing.T, now time.Time) *lifecycleFixture {
	t.Helper()

	db := setupLifecycleTestDB(t)
	tx := &gormTxRunner{db: db}
	clientID := uuid.New()

	auditService, err := audit.NewService(db)
	require.NoError(t, err)

	planService, err := plans.NewService(plans.NewRepository(db), tx, auditService)
	require.NoError(t, err)

	customerService, err := customers.NewService(customers.NewRepository(db), tx, auditService)
	require.NoError(t, err)

	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Repo:     webhooks.NewRepository(db),
		TxRunner: tx,
		Audit:    auditService,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(db),
		Plans:     planService,
		Customers: customerService,
		TxRunner:  tx,
		Emitter:   webhookService,
		Audit:     auditService,
		Now:       func() time.Time { return now },
	})
	require.NoError(t, err)

	plan := &models.Plan{
		ClientID:      clientID,
		Name:          "Monthly Basic",
		Price:         decimal.NewFromInt(499),
		Currency:      "PHP",
		Interval:      enums.PlanIntervalMonthly,
		IntervalCount: 1,
		IsActive:      true,
	}
	require.NoError(t, db.Create(plan).Error)

	customer := &models.Customer{
		ClientID: clientID,
		Name:     "Maria Santos",
		Email:    "maria@example.com",
	}
	require.NoError(t, db.Create(customer).Error)

	return &lifecycleFixture{
		db:       db,
		service:  svc,
		clientID: clientID,
		customer: customer,
		plan:     plan,
		now:      now,
	}
}

func (f *lifecycleFixture) addEndpoint(t *testing.T, events string) *models.WebhookEndpoint {
	t.Helper()
	endpoint := &models.WebhookEndpoint{
		ClientID: f.clientID,
		URL:      "https://hooks.example.com/subman",
		Secret:   "super-secret-signing-key",
		Events:   events,
		IsActive: true,
	}
	require.NoError(t, f.db.Create(endpoint).Error)
	return endpoint
}

func (f *lifecycleFixture) deliveries(t *testing.T, event enums.WebhookEvent) []models.WebhookDelivery {
	t.Helper()
	var rows []models.WebhookDelivery
	require.NoError(t, f.db.Where("event = ?", event).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestServiceCreateComputesNextBillingDate(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))
	fix.addEndpoint(t, "subscription_created")

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
	})
	require.NoError(t, err)

	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.AutoRenew)
	assert.WithinDuration(t, date(2026, time.February, 15), sub.NextBillingDate, time.Second)

	created := fix.deliveries(t, enums.EventSubscriptionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, enums.DeliveryStatusPending, created[0].Status)
	assert.Equal(t, 0, created[0].AttemptCount)
	assert.Equal(t, webhooks.Sign("super-secret-signing-key", []byte(created[0].Payload)), created[0].Signature)

	var auditCount int64
	require.NoError(t, fix.db.Model(&models.AuditLog{}).Where("entity = ? AND entity_id = ?", "subscription", sub.ID).Count(&auditCount).Error)
	assert.Equal(t, int64(1), auditCount)
}

func TestServiceCreateRejectsUnknownPlan(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))

	_, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     uuid.New(),
		StartDate:  date(2026, time.January, 15),
	})
	require.Error(t, err)

	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.CodeNotFound, coded.Code())
}

func TestServiceGetIsTenantScoped(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
	})
	require.NoError(t, err)

	_, err = fix.service.Get(context.Background(), uuid.New(), sub.ID)
	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.CodeNotFound, coded.Code())
}

func TestServicePauseAndResume(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
	})
	require.NoError(t, err)

	paused, err := fix.service.Pause(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPaused, paused.Status)

	_, err = fix.service.Pause(context.Background(), fix.clientID, sub.ID)
	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.CodeConflict, coded.Code())

	resumed, err := fix.service.Resume(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, resumed.Status)
	// Billing date is still in the future, so it must be untouched.
	assert.WithinDuration(t, date(2026, time.February, 15), resumed.NextBillingDate, time.Second)
}

func TestServiceResumeReanchorsStaleBillingDate(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.May, 10))

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.May, 10),
	})
	require.NoError(t, err)

	_, err = fix.service.Pause(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)

	// Simulate a long pause: the stored billing date is now in the past.
	require.NoError(t, fix.db.Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Update("next_billing_date", date(2026, time.March, 10)).Error)

	resumed, err := fix.service.Resume(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, date(2026, time.June, 10), resumed.NextBillingDate, time.Second)
}

func TestServiceCancelSetsTerminalState(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))
	fix.addEndpoint(t, "subscription_canceled")

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
	})
	require.NoError(t, err)

	reason := "customer request"
	canceled, err := fix.service.Cancel(context.Background(), CancelParams{
		ClientID: fix.clientID,
		ID:       sub.ID,
		Reason:   &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, canceled.Status)
	assert.False(t, canceled.AutoRenew)
	require.NotNil(t, canceled.EndDate)
	require.NotNil(t, canceled.CancelReason)
	assert.Equal(t, reason, *canceled.CancelReason)

	require.Len(t, fix.deliveries(t, enums.EventSubscriptionCanceled), 1)

	_, err = fix.service.Cancel(context.Background(), CancelParams{ClientID: fix.clientID, ID: sub.ID})
	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.CodeConflict, coded.Code())
}

func TestEvaluateExpirationsRenewsFromStoredDate(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))
	fix.addEndpoint(t, "subscription_renewed")

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
	})
	require.NoError(t, err)

	today := date(2026, time.February, 20)
	result, err := fix.service.EvaluateExpirations(context.Background(), &fix.clientID, today)
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{Checked: 1, Renewed: 1, Expired: 0}, result)

	refreshed, err := fix.service.Get(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)
	// The anchor day of the cycle is preserved even when the sweep runs late.
	assert.WithinDuration(t, date(2026, time.March, 15), refreshed.NextBillingDate, time.Second)

	// A second sweep on the same day does nothing.
	again, err := fix.service.EvaluateExpirations(context.Background(), &fix.clientID, today)
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{Checked: 1, Renewed: 0, Expired: 0}, again)
	require.Len(t, fix.deliveries(t, enums.EventSubscriptionRenewed), 1)
}

func TestEvaluateExpirationsCatchesUpMissedCycles(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
	})
	require.NoError(t, err)

	// Three billing dates have passed; one sweep must land past today.
	result, err := fix.service.EvaluateExpirations(context.Background(), &fix.clientID, date(2026, time.April, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Renewed)

	refreshed, err := fix.service.Get(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, date(2026, time.May, 15), refreshed.NextBillingDate, time.Second)
}

func TestEvaluateExpirationsExpiresNonRenewing(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))
	fix.addEndpoint(t, "subscription_expired")

	autoRenew := false
	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
		AutoRenew:  &autoRenew,
	})
	require.NoError(t, err)

	result, err := fix.service.EvaluateExpirations(context.Background(), &fix.clientID, date(2026, time.February, 20))
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{Checked: 1, Renewed: 0, Expired: 1}, result)

	refreshed, err := fix.service.Get(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusExpired, refreshed.Status)
	require.Len(t, fix.deliveries(t, enums.EventSubscriptionExpired), 1)

	// Expired rows drop out of the scan entirely.
	again, err := fix.service.EvaluateExpirations(context.Background(), &fix.clientID, date(2026, time.February, 21))
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{Checked: 0}, again)
	require.Len(t, fix.deliveries(t, enums.EventSubscriptionExpired), 1)
}

func TestEvaluateExpirationsEndDateBeatsRenewal(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))

	endDate := date(2026, time.February, 10)
	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
		EndDate:    &endDate,
	})
	require.NoError(t, err)

	// Both the end date and the billing date are behind today. The end date
	// wins and the subscription expires instead of renewing.
	result, err := fix.service.EvaluateExpirations(context.Background(), &fix.clientID, date(2026, time.February, 20))
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{Checked: 1, Renewed: 0, Expired: 1}, result)

	refreshed, err := fix.service.Get(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusExpired, refreshed.Status)
}

func TestEvaluateExpirationsSkipsPausedRenewals(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
	})
	require.NoError(t, err)

	_, err = fix.service.Pause(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)

	result, err := fix.service.EvaluateExpirations(context.Background(), &fix.clientID, date(2026, time.February, 20))
	require.NoError(t, err)
	assert.Equal(t, EvaluationResult{Checked: 0}, result)

	refreshed, err := fix.service.Get(context.Background(), fix.clientID, sub.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, date(2026, time.February, 15), refreshed.NextBillingDate, time.Second)
}

func TestServiceDeleteRemovesRow(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.January, 15))

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
	})
	require.NoError(t, err)

	require.NoError(t, fix.service.Delete(context.Background(), fix.clientID, sub.ID))

	_, err = fix.service.Get(context.Background(), fix.clientID, sub.ID)
	var coded *pkgerrors.Error
	require.ErrorAs(t, err, &coded)
	assert.Equal(t, pkgerrors.CodeNotFound, coded.Code())
}

func TestEndingSoonWindowsOnNextBillingDate(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.March, 1))

	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.March, 1),
	})
	require.NoError(t, err)

	within, err := fix.service.EndingSoon(context.Background(), fix.clientID, 45)
	require.NoError(t, err)
	require.Len(t, within, 1)
	assert.Equal(t, sub.ID, within[0].ID)

	// The April 1st billing date sits outside a one-week horizon.
	outside, err := fix.service.EndingSoon(context.Background(), fix.clientID, 7)
	require.NoError(t, err)
	assert.Empty(t, outside)
}

func TestExpiredSinceReturnsEvaluatorExpirations(t *testing.T) {
	fix := newLifecycleFixture(t, date(2026, time.February, 20))

	autoRenew := false
	sub, err := fix.service.Create(context.Background(), CreateParams{
		ClientID:   fix.clientID,
		CustomerID: fix.customer.ID,
		PlanID:     fix.plan.ID,
		StartDate:  date(2026, time.January, 15),
		AutoRenew:  &autoRenew,
	})
	require.NoError(t, err)

	result, err := fix.service.EvaluateExpirations(context.Background(), &fix.clientID, date(2026, time.February, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)

	expired, err := fix.service.ExpiredSince(context.Background(), fix.clientID, 30)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, sub.ID, expired[0].ID)
	assert.Equal(t, enums.SubscriptionStatusExpired, expired[0].Status)

	// A different tenant sees nothing.
	other, err := fix.service.ExpiredSince(context.Background(), uuid.New(), 30)
	require.NoError(t, err)
	assert.Empty(t, other)
}
