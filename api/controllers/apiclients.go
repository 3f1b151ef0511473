package controllers

import (
	"net/http"

	"github.com/jfuertes/subman-backend/api/middleware"
	"github.com/jfuertes/subman-backend/api/responses"
	"github.com/jfuertes/subman-backend/api/validators"
	apiclientsvc "github.com/jfuertes/subman-backend/internal/apiclients"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

type createAPIClientRequest struct {
	Name     string `json:"name" validate:"required"`
	IsActive *bool  `json:"is_active,omitempty"`
}

type updateAPIClientRequest struct {
	Name     *string `json:"name,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// CreateAPIClient mints a new credential. The plaintext key appears in this
// response only; afterwards only its hash is stored.
func CreateAPIClient(svc apiclientsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var payload createAPIClientRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Create(ctx, apiclientsvc.CreateParams{
			ClientID: middleware.ClientIDFromContext(ctx),
			Name:     payload.Name,
			IsActive: payload.IsActive,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func GetAPIClient(svc apiclientsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "apiClientId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		client, err := svc.Get(ctx, middleware.ClientIDFromContext(ctx), id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, client)
	}
}

func ListAPIClients(svc apiclientsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		clients, err := svc.List(ctx, middleware.ClientIDFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, clients)
	}
}

func UpdateAPIClient(svc apiclientsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "apiClientId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload updateAPIClientRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		client, err := svc.Update(ctx, apiclientsvc.UpdateParams{
			ClientID: middleware.ClientIDFromContext(ctx),
			ID:       id,
			Name:     payload.Name,
			IsActive: payload.IsActive,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, client)
	}
}

func DeleteAPIClient(svc apiclientsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := pathUUID(r, "apiClientId")
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
