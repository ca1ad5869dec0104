package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hitoshi/clubster/internal/linking"
	"github.com/hitoshi/clubster/internal/middleware"
	"github.com/hitoshi/clubster/internal/model"
)

// maxCallbackBodyBytes はコールバック本文の上限。
const maxCallbackBodyBytes = 16 << 10

// LinkingServiceInterface はStripeハンドラーが必要とする連携サービスのインターフェース。
type LinkingServiceInterface interface {
	Initiate(ctx context.Context, session *model.Session) (string, error)
	Complete(ctx context.Context, in linking.CompleteInput) (*linking.CompleteResult, error)
}

// ClubServiceInterface はクラブ関連ハンドラーが必要とするサービスインターフェース。
type ClubServiceInterface interface {
	GetByManager(ctx context.Context, managerID string) (*model.Club, error)
	Create(ctx context.Context, session *model.Session, rawName string) (*model.Club, error)
}

// StripeHandler はStripe Connect連携のHTTPハンドラー。
type StripeHandler struct {
	linking LinkingServiceInterface
	clubs   ClubServiceInterface
}

// NewStripeHandler はStripeHandlerを生成する。
func NewStripeHandler(linking LinkingServiceInterface, clubs ClubServiceInterface) *StripeHandler {
	return &StripeHandler{linking: linking, clubs: clubs}
}

type onboardingResponse struct {
	URL string `json:"url"`
}

type callbackRequest struct {
	Code      string `json:"code"`
	ManagerID string `json:"managerId"`
	State     string `json:"state"`
}

type callbackResponse struct {
	Success      bool   `json:"success"`
	StripeUserID string `json:"stripe_user_id"`
}

type stripeStatusResponse struct {
	StripeStatus string `json:"stripe_status"`
	StripeUserID string `json:"stripe_user_id,omitempty"`
}

// Onboarding はStripe Connectの認可URLを返す。
// GET /api/stripe/onboarding
func (h *StripeHandler) Onboarding(w http.ResponseWriter, r *http.Request) {
	url, err := h.linking.Initiate(r.Context(), middleware.SessionFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, onboardingResponse{URL: url})
}

// Callback は認可コードを交換し、クラブにStripeアカウントを保存する。
// POST /api/stripe/callback
//
// マネージャーIDは本文で受け取る。strictモードではstateとの照合で検証される。
func (h *StripeHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxCallbackBodyBytes))
	// 空の本文は必須項目の欠落として扱う
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	result, err := h.linking.Complete(r.Context(), linking.CompleteInput{
		Code:      req.Code,
		ManagerID: req.ManagerID,
		State:     req.State,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, callbackResponse{
		Success:      true,
		StripeUserID: result.StripeUserID,
	})
}

// Status はマネージャーのクラブのStripe連携状態を返す。
// GET /api/stripe/status
func (h *StripeHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	if !session.IsManager() {
		writeAPIErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
		return
	}

	club, err := h.clubs.GetByManager(r.Context(), session.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := stripeStatusResponse{StripeStatus: string(club.StripeStatus)}
	if club.IsStripeLinked() {
		resp.StripeUserID = club.StripeAccountID
	}
	writeJSON(w, http.StatusOK, resp)
}
