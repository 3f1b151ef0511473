package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jfuertes/subman-backend/api/middleware"
	"github.com/jfuertes/subman-backend/api/responses"
	"github.com/jfuertes/subman-backend/api/validators"
	plansvc "github.com/jfuertes/subman-backend/internal/plans"
	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

type createPlanRequest struct {
	Name          string  `json:"name" validate:"required"`
	Price         string  `json:"price" validate:"required"`
	Currency      string  `json:"currency,omitempty" validate:"omitempty,len=3"`
	Interval      string  `json:"interval" validate:"required"`
	IntervalCount int     `json:"interval_count,omitempty" validate:"omitempty,min=1"`
	Description   *string `json:"description,omitempty"`
}

type updatePlanRequest struct {
	Name          *string `json:"name,omitempty"`
	Price         *string `json:"price,omitempty"`
	Description   *string `json:"description,omitempty"`
	IsActive      *bool   `json:"is_active,omitempty"`
	Interval      *string `json:"interval,omitempty"`
	IntervalCount *int    `json:"interval_count,omitempty" validate:"omitempty,min=1"`
}

func CreatePlan(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		clientID := middleware.ClientIDFromContext(ctx)

		var payload createPlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		price, err := decimal.NewFromString(strings.TrimSpace(payload.Price))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price must be a decimal string"))
			return
		}

		interval, err := enums.ParsePlanInterval(payload.Interval)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan interval"))
			return
		}

		plan, err := svc.Create(ctx, plansvc.CreateParams{
			ClientID:      clientID,
			Name:          payload.Name,
			Price:         price,
			Currency:      payload.Currency,
			Interval:      interval,
			IntervalCount: payload.IntervalCount,
			Description:   payload.Description,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, plan)
	}
}

func GetPlan(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "planId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		plan, err := svc.Get(ctx, middleware.ClientIDFromContext(ctx), id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, plan)
	}
}

func ListPlans(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.List(ctx, plansvc.ListParams{
			ClientID:   middleware.ClientIDFromContext(ctx),
			ActiveOnly: strings.EqualFold(r.URL.Query().Get("active"), "true"),
			Page:       page,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WritePage(w, result.Items, result.Meta)
	}
}

func UpdatePlan(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "planId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updatePlanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params := plansvc.UpdateParams{
			ClientID:      middleware.ClientIDFromContext(ctx),
			ID:            id,
			Name:          payload.Name,
			Description:   payload.Description,
			IsActive:      payload.IsActive,
			IntervalCount: payload.IntervalCount,
		}

		if payload.Price != nil {
			price, err := decimal.NewFromString(strings.TrimSpace(*payload.Price))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "price must be a decimal string"))
				return
			}
			params.Price = &price
		}
		if payload.Interval != nil {
			interval, err := enums.ParsePlanInterval(*payload.Interval)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan interval"))
				return
			}
			params.Interval = &interval
		}

		plan, err := svc.Update(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, plan)
	}
}

func DeletePlan(svc plansvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "planId")
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
