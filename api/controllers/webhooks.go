package controllers

import (
	"net/http"
	"strings"

	"github.com/jfuertes/subman-backend/api/middleware"
	"github.com/jfuertes/subman-backend/api/responses"
	"github.com/jfuertes/subman-backend/api/validators"
	webhooksvc "github.com/jfuertes/subman-backend/internal/webhooks"
	"github.com/jfuertes/subman-backend/pkg/enums"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

type createWebhookEndpointRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Secret string   `json:"secret" validate:"required,min=16"`
	Events []string `json:"events" validate:"required,min=1,dive,required"`
}

type updateWebhookEndpointRequest struct {
	URL      *string  `json:"url,omitempty" validate:"omitempty,url"`
	Secret   *string  `json:"secret,omitempty" validate:"omitempty,min=16"`
	Events   []string `json:"events,omitempty"`
	IsActive *bool    `json:"is_active,omitempty"`
}

func CreateWebhookEndpoint(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload createWebhookEndpointRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		endpoint, err := svc.CreateEndpoint(ctx, webhooksvc.CreateEndpointParams{
			ClientID: middleware.ClientIDFromContext(ctx),
			URL:      payload.URL,
			Secret:   payload.Secret,
			Events:   payload.Events,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, endpoint)
	}
}

func GetWebhookEndpoint(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "endpointId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		endpoint, err := svc.GetEndpoint(ctx, middleware.ClientIDFromContext(ctx), id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, endpoint)
	}
}

func ListWebhookEndpoints(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ListEndpoints(ctx, middleware.ClientIDFromContext(ctx), page)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WritePage(w, result.Items, result.Meta)
	}
}

func UpdateWebhookEndpoint(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "endpointId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateWebhookEndpointRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		endpoint, err := svc.UpdateEndpoint(ctx, webhooksvc.UpdateEndpointParams{
			ClientID: middleware.ClientIDFromContext(ctx),
			ID:       id,
			URL:      payload.URL,
			Secret:   payload.Secret,
			Events:   payload.Events,
			IsActive: payload.IsActive,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, endpoint)
	}
}

func DeleteWebhookEndpoint(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "endpointId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.DeleteEndpoint(ctx, middleware.ClientIDFromContext(ctx), id); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

func ListWebhookDeliveries(svc webhooksvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		endpointID, err := validators.ParseQueryUUID(r, "endpoint_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		params := webhooksvc.ListDeliveriesParams{
			ClientID:   middleware.ClientIDFromContext(ctx),
			EndpointID: endpointID,
			Page:       page,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseDeliveryStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery status"))
				return
			}
			params.Status = &status
		}

		result, err := svc.ListDeliveries(ctx, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WritePage(w, result.Items, result.Meta)
	}
}
