package controllers

import (
	"net/http"
	"strings"

	"github.com/jfuertes/subman-backend/api/middleware"
	"github.com/jfuertes/subman-backend/api/responses"
	"github.com/jfuertes/subman-backend/api/validators"
	auditsvc "github.com/jfuertes/subman-backend/internal/audit"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

func ListAuditLogs(svc auditsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		page, err := validators.ParsePageParams(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entityID, err := validators.ParseQueryUUID(r, "entity_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.List(ctx, auditsvc.ListParams{
			ClientID: middleware.ClientIDFromContext(ctx),
			Entity:   strings.TrimSpace(r.URL.Query().Get("entity")),
			EntityID: entityID,
			Page:     page,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WritePage(w, result.Items, result.Meta)
	}
}
