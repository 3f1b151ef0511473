package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/jfuertes/subman-backend/internal/webhooks"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

const dispatchJobName = "webhook-dispatch"

type deliveryDispatcher interface {
	Run(ctx context.Context, now time.Time) (webhooks.DispatchResult, error)
}

// DispatchJobParams configure the webhook dispatch job.
type DispatchJobParams struct {
	Dispatcher deliveryDispatcher
	Logger     *logger.Logger
	Now        func() time.Time
}

// DispatchJob drains due webhook deliveries once per cron cycle.
type DispatchJob struct {
	dispatcher deliveryDispatcher
	logg       *logger.Logger
	now        func() time.Time
}

// NewDispatchJob validates params and builds the job.
func NewDispatchJob(params DispatchJobParams) (*DispatchJob, error) {
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &DispatchJob{dispatcher: params.Dispatcher, logg: params.Logger, now: now}, nil
}

// Name implements Job.
func (j *DispatchJob) Name() string {
	return dispatchJobName
}

// Run implements Job.
func (j *DispatchJob) Run(ctx context.Context) error {
	result, err := j.dispatcher.Run(ctx, j.now())
	if err != nil {
		return fmt.Errorf("dispatch deliveries: %w", err)
	}
	if result.Processed == 0 {
		return nil
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"retried":   result.Retried,
		"failed":    result.Failed,
	})
	j.logg.Info(ctx, "dispatch cycle complete")
	return nil
}
