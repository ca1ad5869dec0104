package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/clubster/internal/middleware"
	"github.com/hitoshi/clubster/internal/model"
)

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.pingFn(ctx)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"no checker", nil, http.StatusOK, "ok"},
		{"ping ok", &mockHealthChecker{pingFn: func(ctx context.Context) error { return nil }}, http.StatusOK, "ok"},
		{"ping fails", &mockHealthChecker{pingFn: func(ctx context.Context) error { return errors.New("connection refused") }}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.checker).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body healthResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("status field = %q, want %q", body.Status, tt.wantBody)
			}
		})
	}
}

func TestHealthHandler_PingHasDeadline(t *testing.T) {
	var hasDeadline bool
	checker := &mockHealthChecker{pingFn: func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	}}

	NewHealthHandler(checker).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if !hasDeadline {
		t.Error("ping context should carry a deadline")
	}
}

func TestPageHandler_ReportsPathAndSession(t *testing.T) {
	h := NewPageHandler("manager")

	req := httptest.NewRequest(http.MethodGet, "/events/7", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var anon pageResponse
	if err := json.NewDecoder(rec.Body).Decode(&anon); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if anon.App != "manager" || anon.Path != "/events/7" || anon.Authenticated {
		t.Errorf("anonymous page = %+v", anon)
	}

	session := &model.Session{UserID: "manager-1", Role: model.RoleManager}
	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	req = req.WithContext(middleware.ContextWithSession(req.Context(), session))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var authed pageResponse
	if err := json.NewDecoder(rec.Body).Decode(&authed); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !authed.Authenticated {
		t.Error("page with session should report authenticated")
	}
}
