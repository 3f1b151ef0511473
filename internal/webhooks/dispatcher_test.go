package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	"github.com/jfuertes/subman-backend/pkg/enums"
	"github.com/jfuertes/subman-backend/pkg/pagination"
)

// dispatchFakeRepo feeds the dispatcher a fixed due batch and records saves.
type dispatchFakeRepo struct {
	due   []DueDelivery
	saved []models.WebhookDelivery
}

func (f *dispatchFakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *dispatchFakeRepo) CreateEndpoint(ctx context.Context, endpoint *models.WebhookEndpoint) error {
	return nil
}

func (f *dispatchFakeRepo) FindEndpointByID(ctx context.Context, clientID, id uuid.UUID) (*models.WebhookEndpoint, error) {
	return nil, nil
}

func (f *dispatchFakeRepo) ListEndpoints(ctx context.Context, clientID uuid.UUID, page pagination.Params) ([]models.WebhookEndpoint, int64, error) {
	return nil, 0, nil
}

func (f *dispatchFakeRepo) ListActiveEndpoints(ctx context.Context, clientID uuid.UUID) ([]models.WebhookEndpoint, error) {
	return nil, nil
}

func (f *dispatchFakeRepo) SaveEndpoint(ctx context.Context, endpoint *models.WebhookEndpoint) error {
	return nil
}

func (f *dispatchFakeRepo) DeleteEndpoint(ctx context.Context, clientID, id uuid.UUID) (bool, error) {
	return false, nil
}

func (f *dispatchFakeRepo) CreateDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	return nil
}

func (f *dispatchFakeRepo) FindDueDeliveries(ctx context.Context, now time.Time, limit int) ([]DueDelivery, error) {
	if len(f.due) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *dispatchFakeRepo) SaveDelivery(ctx context.Context, delivery *models.WebhookDelivery) error {
	f.saved = append(f.saved, *delivery)
	return nil
}

func (f *dispatchFakeRepo) ListDeliveries(ctx context.Context, params listDeliveriesParams) ([]models.WebhookDelivery, int64, error) {
	return nil, 0, nil
}

func pendingDelivery(url string) DueDelivery {
	clientID := uuid.New()
	endpoint := models.WebhookEndpoint{
		ID:       uuid.New(),
		ClientID: clientID,
		URL:      url,
		Secret:   "endpoint-secret-0123456789",
		Events:   "subscription_created",
		IsActive: true,
	}
	payload := `{"event":"subscription.created","data":{}}`
	return DueDelivery{
		Delivery: models.WebhookDelivery{
			ID:          uuid.New(),
			ClientID:    clientID,
			EndpointID:  endpoint.ID,
			Event:       enums.EventSubscriptionCreated,
			Payload:     payload,
			Signature:   Sign(endpoint.Secret, []byte(payload)),
			Status:      enums.DeliveryStatusPending,
			NextRetryAt: time.Now().UTC(),
		},
		Endpoint: endpoint,
	}
}

func newTestDispatcher(t *testing.T, repo Repository) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherParams{
		Repo:   repo,
		Client: http.DefaultClient,
		Jitter: func(n int) int { return 0 },
	})
	require.NoError(t, err)
	return d
}

func TestDispatcherMarksSuccessOn2xx(t *testing.T) {
	var gotSignature, gotEvent, gotDeliveryID, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-SubMan-Signature")
		gotEvent = r.Header.Get("X-SubMan-Event")
		gotDeliveryID = r.Header.Get("X-SubMan-Delivery-Id")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	due := pendingDelivery(server.URL)
	repo := &dispatchFakeRepo{due: []DueDelivery{due}}

	result, err := newTestDispatcher(t, repo).Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Processed: 1, Succeeded: 1}, result)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	assert.Equal(t, enums.DeliveryStatusSuccess, saved.Status)
	assert.Equal(t, 0, saved.AttemptCount)

	assert.Equal(t, due.Delivery.Signature, gotSignature)
	assert.Equal(t, "subscription_created", gotEvent)
	assert.Equal(t, due.Delivery.ID.String(), gotDeliveryID)
	assert.Equal(t, due.Delivery.Payload, gotBody)
}

func TestDispatcherSchedulesRetryWithBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	due := pendingDelivery(server.URL)
	repo := &dispatchFakeRepo{due: []DueDelivery{due}}
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	result, err := newTestDispatcher(t, repo).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Processed: 1, Retried: 1}, result)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	assert.Equal(t, enums.DeliveryStatusPending, saved.Status)
	assert.Equal(t, 1, saved.AttemptCount)
	require.NotNil(t, saved.LastError)
	assert.Contains(t, *saved.LastError, "status 500")
	// Attempt 1 with zero jitter: 2^1 seconds after the cycle instant.
	assert.Equal(t, now.Add(2*time.Second), saved.NextRetryAt)
}

func TestDispatcherExhaustsRetryBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	due := pendingDelivery(server.URL)
	due.Delivery.AttemptCount = 4
	repo := &dispatchFakeRepo{due: []DueDelivery{due}}

	result, err := newTestDispatcher(t, repo).Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Processed: 1, Failed: 1}, result)

	require.Len(t, repo.saved, 1)
	saved := repo.saved[0]
	assert.Equal(t, enums.DeliveryStatusFailed, saved.Status)
	assert.Equal(t, 5, saved.AttemptCount)
}

func TestDispatcherSucceedsOnFifthAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	due := pendingDelivery(server.URL)
	due.Delivery.AttemptCount = 4
	repo := &dispatchFakeRepo{due: []DueDelivery{due}}

	result, err := newTestDispatcher(t, repo).Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Processed: 1, Succeeded: 1}, result)
	assert.Equal(t, enums.DeliveryStatusSuccess, repo.saved[0].Status)
	assert.Equal(t, 4, repo.saved[0].AttemptCount)
}

func TestDispatcherContinuesPastUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	broken := pendingDelivery("http://127.0.0.1:1/unreachable")
	healthy := pendingDelivery(server.URL)
	repo := &dispatchFakeRepo{due: []DueDelivery{broken, healthy}}

	result, err := newTestDispatcher(t, repo).Run(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, DispatchResult{Processed: 2, Succeeded: 1, Retried: 1}, result)
}

func TestDispatcherBackoffGrowth(t *testing.T) {
	d := newTestDispatcher(t, &dispatchFakeRepo{})

	assert.Equal(t, 2*time.Second, d.backoff(1))
	assert.Equal(t, 4*time.Second, d.backoff(2))
	assert.Equal(t, 8*time.Second, d.backoff(3))
	assert.Equal(t, 16*time.Second, d.backoff(4))
}
