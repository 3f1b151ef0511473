package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/jfuertes/subman-backend/api/responses"
	"github.com/jfuertes/subman-backend/pkg/db/models"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
	"github.com/jfuertes/subman-backend/pkg/logger"
)

const apiKeyHeader = "X-Api-Key"

// keyAuthenticator resolves a presented API key to its tenant credential.
// A nil credential with nil error means the key is unknown or revoked.
type keyAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*models.APIClient, error)
}

// APIKeyAuth authenticates requests via the X-Api-Key header (or a Bearer
// token carrying the same key) and scopes the context to the resolved tenant.
func APIKeyAuth(auth keyAuthenticator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			key := extractAPIKey(r)
			if key == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "api key required"))
				return
			}

			client, err := auth.Authenticate(ctx, key)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if client == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key"))
				return
			}

			ctx = WithClientID(ctx, client.ClientID)
			if logg != nil {
				ctx = logg.WithClientID(ctx, client.ClientID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}
