package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jfuertes/subman-backend/api/middleware"
	"github.com/jfuertes/subman-backend/api/responses"
	"github.com/jfuertes/subman-backend/api/validators"
	subsvc "github.com/jfuertes/subman-backend/internal/subscriptions"
	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

type createSubscriptionRequest struct {
	CustomerID string     `json:"customer_id" validate:"required,uuid"`
	PlanID     string     `json:"plan_id" validate:"required,uuid"`
	StartDate  time.Time  `json:"start_date" validate:"required"`
	EndDate    *time.Time `json:"end_date,omitempty"`
	Status     *string    `json:"status,omitempty"`
	AutoRenew  *bool      `json:"auto_renew,omitempty"`
}

type updateSubscriptionRequest struct {
	AutoRenew    *bool      `json:"auto_renew,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	CancelReason *string    `json:"cancel_reason,omitempty"`
}

type cancelSubscriptionRequest struct {
	Reason *string `json:"reason,omitempty"`
}

func CreateSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload createSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		customerID, err := uuid.Parse(payload.CustomerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id"))
			return
		}
		planID, err := uuid.Parse(payload.PlanID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
			return
		}

		params := subsvc.CreateParams{
			ClientID:   middleware.ClientIDFromContext(ctx),
			CustomerID: customerID,
			PlanID:     planID,
			StartDate:  payload.StartDate,
			EndDate:    payload.EndDate,
			AutoRenew:  payload.AutoRenew,
		}
		if payload.Status != nil {
			status, err := enums.ParseSubscriptionStatus(*payload.Status)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription status"))
				return
			}
			params.Status = &status
		}

		sub, err := svc.Create(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, sub)
	}
}

func GetSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.Get(ctx, middleware.ClientIDFromContext(ctx), id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

func ListSubscriptions(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		customerID, err := validators.ParseQueryUUID(r, "customer_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params := subsvc.ListParams{
			ClientID:   middleware.ClientIDFromContext(ctx),
			CustomerID: customerID,
			Page:       page,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseSubscriptionStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription status"))
				return
			}
			params.Status = &status
		}

		result, err := svc.List(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WritePage(w, result.Items, result.Meta)
	}
}

func UpdateSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateSubscriptionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.Update(ctx, subsvc.UpdateParams{
			ClientID:     middleware.ClientIDFromContext(ctx),
			ID:           id,
			AutoRenew:    payload.AutoRenew,
			EndDate:      payload.EndDate,
			CancelReason: payload.CancelReason,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

func PauseSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.Pause(ctx, middleware.ClientIDFromContext(ctx), id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

func ResumeSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sub, err := svc.Resume(ctx, middleware.ClientIDFromContext(ctx), id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

func CancelSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		payload := cancelSubscriptionRequest{}
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		sub, err := svc.Cancel(ctx, subsvc.CancelParams{
			ClientID: middleware.ClientIDFromContext(ctx),
			ID:       id,
			Reason:   payload.Reason,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, sub)
	}
}

func DeleteSubscription(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "subscriptionId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, middleware.ClientIDFromContext(ctx), id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// EndingSoonSubscriptions lists active subscriptions whose next billing date
// falls within the requested horizon, 30 days by default.
func EndingSoonSubscriptions(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		days, err := validators.ParseQueryInt(r, "days", 30, 1, 365)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, err := svc.EndingSoon(ctx, middleware.ClientIDFromContext(ctx), days)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, items)
	}
}

// RecentlyExpiredSubscriptions lists subscriptions the evaluator expired
// within the requested lookback, 30 days by default.
func RecentlyExpiredSubscriptions(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		days, err := validators.ParseQueryInt(r, "days", 30, 1, 365)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, err := svc.ExpiredSince(ctx, middleware.ClientIDFromContext(ctx), days)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, items)
	}
}

// EvaluateSubscriptions runs the expiration evaluator for the caller's tenant
// on demand, outside the scheduled sweep.
func EvaluateSubscriptions(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		clientID := middleware.ClientIDFromContext(ctx)
		result, err := svc.EvaluateExpirations(ctx, &clientID, time.Now().UTC())
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
