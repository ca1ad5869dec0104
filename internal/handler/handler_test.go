package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/clubster/internal/linking"
	"github.com/hitoshi/clubster/internal/middleware"
	"github.com/hitoshi/clubster/internal/model"
)

// --- モック定義 ---

// mockLinkingService はLinkingServiceInterfaceのモック実装。
type mockLinkingService struct {
	initiateFn func(ctx context.Context, session *model.Session) (string, error)
	completeFn func(ctx context.Context, in linking.CompleteInput) (*linking.CompleteResult, error)
}

func (m *mockLinkingService) Initiate(ctx context.Context, session *model.Session) (string, error) {
	if m.initiateFn != nil {
		return m.initiateFn(ctx, session)
	}
	return "", nil
}

func (m *mockLinkingService) Complete(ctx context.Context, in linking.CompleteInput) (*linking.CompleteResult, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, in)
	}
	return nil, nil
}

// mockClubService はClubServiceInterfaceのモック実装。
type mockClubService struct {
	getByManagerFn func(ctx context.Context, managerID string) (*model.Club, error)
	createFn       func(ctx context.Context, session *model.Session, rawName string) (*model.Club, error)
}

func (m *mockClubService) GetByManager(ctx context.Context, managerID string) (*model.Club, error) {
	if m.getByManagerFn != nil {
		return m.getByManagerFn(ctx, managerID)
	}
	return nil, model.NewClubNotFoundError()
}

func (m *mockClubService) Create(ctx context.Context, session *model.Session, rawName string) (*model.Club, error) {
	if m.createFn != nil {
		return m.createFn(ctx, session, rawName)
	}
	return nil, nil
}

// --- テストヘルパー ---

// withSession はテスト用にリクエストコンテキストにセッションを注入するヘルパー。
func withSession(r *http.Request, userID string, role model.Role) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), &model.Session{UserID: userID, Role: role}))
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewUnauthorizedError(), http.StatusUnauthorized},
		{model.NewForbiddenError(), http.StatusForbidden},
		{model.NewMissingFieldError("code"), http.StatusBadRequest},
		{model.NewInvalidBodyError(), http.StatusBadRequest},
		{model.NewInvalidStateError(), http.StatusBadRequest},
		{model.NewProviderError("nope"), http.StatusBadRequest},
		{model.NewMissingStripeUserIDError(), http.StatusBadRequest},
		{model.NewInvalidClubNameError("empty"), http.StatusBadRequest},
		{model.NewClubNotFoundError(), http.StatusNotFound},
		{model.NewClubAlreadyExistsError(), http.StatusConflict},
		{model.NewRateLimitedError(), http.StatusTooManyRequests},
		{model.NewPersistenceFailedError(), http.StatusInternalServerError},
		{model.NewInternalError(), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleServiceError_UnknownErrorHidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	handleServiceError(w, context.DeadlineExceeded)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := parseAPIErrorResponse(t, w)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Error == context.DeadlineExceeded.Error() {
		t.Error("internal error details must not be exposed")
	}
}
