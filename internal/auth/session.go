// Package auth はセッション検証、Stripe Connect OAuth、OAuth stateの保存を提供する。
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/clubster/internal/model"
)

// ErrInvalidSession はアクセストークンが不正または期限切れであることを示す。
var ErrInvalidSession = errors.New("invalid session token")

// sessionClaims は認証サービスが発行するアクセストークンのクレーム。
type sessionClaims struct {
	UserMetadata struct {
		Role string `json:"role"`
	} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// SessionVerifier は認証サービスのアクセストークン（HS256 JWT）を検証し、
// model.Sessionに変換する。アプリケーションはセッションを書き込まない。
type SessionVerifier struct {
	secret     []byte
	cookieName string
	now        func() time.Time
}

// NewSessionVerifier はSessionVerifierを生成する。
func NewSessionVerifier(secret, cookieName string) *SessionVerifier {
	return &SessionVerifier{
		secret:     []byte(secret),
		cookieName: cookieName,
		now:        time.Now,
	}
}

// CookieName はセッションCookie名を返す。
func (v *SessionVerifier) CookieName() string {
	return v.cookieName
}

// Verify はトークン文字列を検証してセッションを返す。
func (v *SessionVerifier) Verify(token string) (*model.Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidSession)
	}

	return &model.Session{
		UserID:    claims.Subject,
		Role:      model.ParseRole(claims.UserMetadata.Role),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// SessionFromRequest はリクエストのCookie（無ければAuthorization: Bearer）から
// セッションを解決する。トークンが無い場合は(nil, nil)を返す。
func (v *SessionVerifier) SessionFromRequest(r *http.Request) (*model.Session, error) {
	token := ""
	if c, err := r.Cookie(v.cookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return nil, nil
	}
	return v.Verify(token)
}
