package handler

import (
	"net/http"

	"github.com/hitoshi/clubster/internal/middleware"
)

type pageResponse struct {
	App           string `json:"app"`
	Path          string `json:"path"`
	Authenticated bool   `json:"authenticated"`
}

// NewPageHandler はアクセス制御を通過したページリクエストに応答するハンドラーを返す。
// 画面の描画はフロントエンドが担うため、ここでは到達したページを返すだけ。
func NewPageHandler(app string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pageResponse{
			App:           app,
			Path:          r.URL.Path,
			Authenticated: middleware.SessionFromContext(r.Context()) != nil,
		})
	}
}
