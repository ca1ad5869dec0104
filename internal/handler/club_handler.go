package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/clubster/internal/middleware"
	"github.com/hitoshi/clubster/internal/model"
)

// ClubHandler はクラブ管理のHTTPハンドラー。
type ClubHandler struct {
	service ClubServiceInterface
}

// NewClubHandler はClubHandlerを生成する。
func NewClubHandler(service ClubServiceInterface) *ClubHandler {
	return &ClubHandler{service: service}
}

type createClubRequest struct {
	Name string `json:"name"`
}

type clubResponse struct {
	ID           string    `json:"id"`
	ManagerID    string    `json:"manager_id"`
	Name         string    `json:"name"`
	Verified     bool      `json:"verified"`
	StripeStatus string    `json:"stripe_status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toClubResponse(c *model.Club) clubResponse {
	return clubResponse{
		ID:           c.ID,
		ManagerID:    c.ManagerID,
		Name:         c.Name,
		Verified:     c.Verified,
		StripeStatus: string(c.StripeStatus),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// GetMine はセッションユーザーのクラブを返す。
// GET /api/clubs/me
func (h *ClubHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	club, err := h.service.GetByManager(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClubResponse(club))
}

// Create はマネージャーのクラブを登録する。
// POST /api/clubs
func (h *ClubHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createClubRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError())
		return
	}

	club, err := h.service.Create(r.Context(), session, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClubResponse(club))
}
