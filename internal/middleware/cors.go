package middleware

import (
	"net/http"
	"slices"
)

// corsAllowedHeaders はフロントエンドがAPIに送るリクエストヘッダー。
// X-CSRF-Tokenはクラブ登録とstrictモードのStripeコールバックで必要になる。
const corsAllowedHeaders = "Content-Type, Authorization, X-CSRF-Token"

// NewCORSMiddleware は許可オリジンのリストに対するCORSミドルウェアを返す。
// 顧客アプリとマネージャーアプリのフロントエンドが別オリジンになるため複数指定できる。
// 許可オリジンには要求元オリジンをそのまま返し、ワイルドカードは使わない。
// 許可外オリジンからのプリフライトは403で拒否する。
func NewCORSMiddleware(allowedOrigins ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := origin != "" && slices.Contains(allowedOrigins, origin)
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Expose-Headers", "Retry-After")
				h.Set("Access-Control-Max-Age", "86400")
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if origin != "" && !allowed {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
