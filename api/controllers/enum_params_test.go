package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Each handler rejects an unknown enum value before ever touching its
// service, so these run with nil services on purpose.

func errorCodeOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	return envelope.Error.Code
}

func assertValidationRejected(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if code := errorCodeOf(t, rec); code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %q", code)
	}
}

func TestListSubscriptionsRejectsUnknownStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/subscriptions?status=BOGUS", nil)
	rec := httptest.NewRecorder()

	ListSubscriptions(nil, nil).ServeHTTP(rec, req)

	assertValidationRejected(t, rec)
}

func TestCreateSubscriptionRejectsUnknownStatus(t *testing.T) {
	body := `{
		"customer_id": "` + uuid.NewString() + `",
		"plan_id": "` + uuid.NewString() + `",
		"start_date": "2026-03-01T00:00:00Z",
		"status": "SUSPENDED"
	}`
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	CreateSubscription(nil, nil).ServeHTTP(rec, req)

	assertValidationRejected(t, rec)
}

func TestCreatePlanRejectsUnknownInterval(t *testing.T) {
	body := `{"name": "Starter", "price": "199.00", "interval": "HOURLY"}`
	req := httptest.NewRequest(http.MethodPost, "/plans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	CreatePlan(nil, nil).ServeHTTP(rec, req)

	assertValidationRejected(t, rec)
}

func TestUpdatePlanRejectsUnknownInterval(t *testing.T) {
	router := chi.NewRouter()
	router.Patch("/plans/{planId}", UpdatePlan(nil, nil))

	body := `{"interval": "FORTNIGHTLY"}`
	req := httptest.NewRequest(http.MethodPatch, "/plans/"+uuid.NewString(), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assertValidationRejected(t, rec)
}

func TestListWebhookDeliveriesRejectsUnknownStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/webhook-deliveries?status=BOGUS", nil)
	rec := httptest.NewRecorder()

	ListWebhookDeliveries(nil, nil).ServeHTTP(rec, req)

	assertValidationRejected(t, rec)
}
