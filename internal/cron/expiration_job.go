package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jfuertes/subman-backend/internal/subscriptions"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

const expirationJobName = "subscription-expiration"

type expirationEvaluator interface {
	EvaluateExpirations(ctx context.Context, clientID *uuid.UUID, now time.Time) (subscriptions.EvaluationResult, error)
}

// ExpirationJobParams configure the subscription expiration job.
type ExpirationJobParams struct {
	Service expirationEvaluator
	Logger  *logger.Logger
	Now     func() time.Time
}

// ExpirationJob runs the lifecycle reconciliation scan across all tenants.
type ExpirationJob struct {
	service expirationEvaluator
	logg    *logger.Logger
	now     func() time.Time
}

// NewExpirationJob validates params and builds the job.
func NewExpirationJob(params ExpirationJobParams) (*ExpirationJob, error) {
	if params.Service == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ExpirationJob{service: params.Service, logg: params.Logger, now: now}, nil
}

// Name implements Job.
func (j *ExpirationJob) Name() string {
	return expirationJobName
}

// Run implements Job.
func (j *ExpirationJob) Run(ctx context.Context) error {
	result, err := j.service.EvaluateExpirations(ctx, nil, j.now())
	if err != nil {
		return fmt.Errorf("evaluate expirations: %w", err)
	}
	ctx = j.logg.WithFields(ctx, map[string]any{
		"checked": result.Checked,
		"renewed": result.Renewed,
		"expired": result.Expired,
	})
	j.logg.Info(ctx, "expiration scan complete")
	return nil
}
