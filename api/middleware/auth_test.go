package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jfuertes/subman-backend/pkg/db/models"
	pkgerrors "github.com/jfuertes/subman-backend/pkg/errors"
)

type fakeAuthenticator struct {
	clients map[string]*models.APIClient
	err     error
}

func (f *fakeAuthenticator) Authenticate(ctx context.Context, apiKey string) (*models.APIClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clients[apiKey], nil
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

func TestAPIKeyAuth_RejectsMissingKey(t *testing.T) {
	handler := APIKeyAuth(&fakeAuthenticator{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeUnauthorized) {
		t.Fatalf("unexpected code: %s", code)
	}
}

func TestAPIKeyAuth_RejectsUnknownKey(t *testing.T) {
	handler := APIKeyAuth(&fakeAuthenticator{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	req.Header.Set("X-Api-Key", "sm_deadbeef")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAPIKeyAuth_ScopesContextToTenant(t *testing.T) {
	clientID := uuid.New()
	auth := &fakeAuthenticator{clients: map[string]*models.APIClient{
		"sm_valid": {ClientID: clientID},
	}}

	var gotClientID uuid.UUID
	handler := APIKeyAuth(auth, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClientID = ClientIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	// Header form.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	req.Header.Set("X-Api-Key", "sm_valid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotClientID != clientID {
		t.Fatalf("context tenant mismatch: %s", gotClientID)
	}

	// Bearer form carries the same key.
	gotClientID = uuid.Nil
	req = httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	req.Header.Set("Authorization", "Bearer sm_valid")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotClientID != clientID {
		t.Fatalf("context tenant mismatch: %s", gotClientID)
	}
}

type fakeRateStore struct {
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	f.counts[scope]++
	count := f.counts[scope]
	return count <= limit, count, nil
}

func TestTenantRateLimit_BlocksOverLimit(t *testing.T) {
	store := newFakeRateStore()
	policy := RateLimitPolicy{Window: time.Minute, KeyLimit: 2}
	handler := TenantRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	clientID := uuid.New()
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
		req = req.WithContext(WithClientID(req.Context(), clientID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
		if i == 2 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			if code := decodeErrorCode(t, rec); code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code: %s", code)
			}
		}
	}
}

func TestTenantRateLimit_CountsTenantsSeparately(t *testing.T) {
	store := newFakeRateStore()
	policy := RateLimitPolicy{Window: time.Minute, KeyLimit: 1}
	handler := TenantRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
		req = req.WithContext(WithClientID(req.Context(), uuid.New()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("fresh tenant blocked: %d", rec.Code)
		}
	}
}

func TestTenantRateLimit_DisabledPolicyPassesThrough(t *testing.T) {
	handler := TenantRateLimit(RateLimitPolicy{}, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
