package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/logger"
	"github.com/jfuertes/subman-backend/pkg/metrics"
)

const (
	// DefaultBatchSize bounds how many deliveries one cycle processes.
	DefaultBatchSize = 20
	// DefaultMaxAttempts is the retry budget before a delivery is FAILED.
	DefaultMaxAttempts = 5

	headerSignature  = "X-SubMan-Signature"
	headerEvent      = "X-SubMan-Event"
	headerDeliveryID = "X-SubMan-Delivery-Id"
)

// httpDoer is the slice of http.Client the dispatcher needs.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Dispatcher drains due pending deliveries each cycle. It assumes a single
// active instance; the cron lock provides that guarantee in deployment.
type Dispatcher struct {
	repo        Repository
	client      httpDoer
	batchSize   int
	maxAttempts int
	logg        *logger.Logger
	metrics     *metrics.WebhookDeliveryMetrics
	jitter      func(n int) int
}

// DispatcherParams configures a Dispatcher.
type DispatcherParams struct {
	Repo        Repository
	Client      httpDoer
	BatchSize   int
	MaxAttempts int
	Logger      *logger.Logger
	Metrics     *metrics.WebhookDeliveryMetrics
	// Jitter returns a value in [0, n). Defaults to math/rand.
	Jitter func(n int) int
}

// DispatchResult reports what one dispatcher cycle did.
type DispatchResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}

// NewDispatcher validates parameters and builds a Dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "webhooks repository required")
	}
	if params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "http client required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	jitter := params.Jitter
	if jitter == nil {
		jitter = rand.Intn
	}
	return &Dispatcher{
		repo:        params.Repo,
		client:      params.Client,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logg:        params.Logger,
		metrics:     params.Metrics,
		jitter:      jitter,
	}, nil
}

// Run performs one dispatch cycle at the supplied instant. A failed POST never
// aborts the batch; each delivery settles its own retry state.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) (DispatchResult, error) {
	due, err := d.repo.FindDueDeliveries(ctx, now, d.batchSize)
	if err != nil {
		return DispatchResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find due deliveries")
	}

	result := DispatchResult{}
	for i := range due {
		delivery := due[i].Delivery
		endpoint := due[i].Endpoint
		result.Processed++

		started := time.Now()
		postErr := d.post(ctx, &delivery, endpoint)
		elapsed := time.Since(started)

		if postErr == nil {
			delivery.Status = enums.DeliveryStatusSuccess
			d.observe("success", elapsed)
			if err := d.repo.SaveDelivery(ctx, &delivery); err != nil {
				d.logError(ctx, err, delivery, "persist delivery success")
				continue
			}
			result.Succeeded++
			continue
		}

		delivery.AttemptCount++
		msg := postErr.Error()
		delivery.LastError = &msg

		if delivery.AttemptCount >= d.maxAttempts {
			delivery.Status = enums.DeliveryStatusFailed
			d.observe("failed", elapsed)
			result.Failed++
		} else {
			delivery.NextRetryAt = now.Add(d.backoff(delivery.AttemptCount))
			d.observe("retry", elapsed)
			result.Retried++
		}
		if err := d.repo.SaveDelivery(ctx, &delivery); err != nil {
			d.logError(ctx, err, delivery, "persist delivery retry state")
		}
	}
	return result, nil
}

func (d *Dispatcher) post(ctx context.Context, delivery *models.WebhookDelivery, endpoint models.WebhookEndpoint) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader([]byte(delivery.Payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, delivery.Signature)
	req.Header.Set(headerEvent, string(delivery.Event))
	req.Header.Set(headerDeliveryID, delivery.ID.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}
	return nil
}

// backoff returns 2^attempt seconds plus up to 2 seconds of jitter.
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := 1 << attempt
	return time.Duration(delay+d.jitter(3)) * time.Second
}

func (d *Dispatcher) observe(outcome string, elapsed time.Duration) {
	if d.metrics != nil {
		d.metrics.ObserveAttempt(outcome, elapsed)
	}
}

func (d *Dispatcher) logError(ctx context.Context, err error, delivery models.WebhookDelivery, msg string) {
	if d.logg == nil {
		return
	}
	ctx = d.logg.WithField(ctx, "delivery_id", delivery.ID.String())
	d.logg.Error(ctx, msg, err)
}
