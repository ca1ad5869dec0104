package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/clubster/internal/model"
)

func TestClubHandler_GetMine(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h := NewClubHandler(&mockClubService{
		getByManagerFn: func(ctx context.Context, managerID string) (*model.Club, error) {
			if managerID == "manager-1" {
				return &model.Club{
					ID: "club-1", ManagerID: managerID, Name: "Shibuya Badminton",
					StripeStatus: model.StripeStatusNone, CreatedAt: created, UpdatedAt: created,
				}, nil
			}
			return nil, model.NewClubNotFoundError()
		},
	})

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GetMine(w, withSession(httptest.NewRequest(http.MethodGet, "/api/clubs/me", nil), "manager-1", model.RoleManager))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body clubResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if body.ID != "club-1" || body.Name != "Shibuya Badminton" || body.StripeStatus != "none" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GetMine(w, withSession(httptest.NewRequest(http.MethodGet, "/api/clubs/me", nil), "manager-2", model.RoleManager))

		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
		if body := parseAPIErrorResponse(t, w); body.Code != model.ErrCodeClubNotFound {
			t.Errorf("code = %q", body.Code)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.GetMine(w, httptest.NewRequest(http.MethodGet, "/api/clubs/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestClubHandler_Create(t *testing.T) {
	var gotName string
	h := NewClubHandler(&mockClubService{
		createFn: func(ctx context.Context, session *model.Session, rawName string) (*model.Club, error) {
			gotName = rawName
			if rawName == "dup" {
				return nil, model.NewClubAlreadyExistsError()
			}
			return &model.Club{ID: "club-1", ManagerID: session.UserID, Name: rawName, StripeStatus: model.StripeStatusNone}, nil
		},
	})

	t.Run("created", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/clubs", strings.NewReader(`{"name":"Court 7"}`)), "manager-1", model.RoleManager)
		h.Create(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201; body=%s", w.Code, w.Body.String())
		}
		if gotName != "Court 7" {
			t.Errorf("name = %q", gotName)
		}
	})

	t.Run("conflict", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/clubs", strings.NewReader(`{"name":"dup"}`)), "manager-1", model.RoleManager)
		h.Create(w, req)

		if w.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", w.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := withSession(httptest.NewRequest(http.MethodPost, "/api/clubs", strings.NewReader(`name=x`)), "manager-1", model.RoleManager)
		h.Create(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("anonymous", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Create(w, httptest.NewRequest(http.MethodPost, "/api/clubs", strings.NewReader(`{"name":"x"}`)))

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}
