// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"

	"github.com/hitoshi/clubster/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// requestLogContextKey はロギングミドルウェアが後から参照する記録先のキー。
var requestLogContextKey = contextKey("request_log")

// requestLog はハンドラーチェーンの内側で解決された情報をロギングミドルウェアへ渡す。
type requestLog struct {
	session *model.Session
}

// ContextWithSession はコンテキストにセッションを注入する。
// アクセス制御ミドルウェアとテストで使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.session = session
	}
	return context.WithValue(ctx, sessionContextKey, session)
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// 匿名リクエストの場合はnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	session := SessionFromContext(ctx)
	if session == nil || session.UserID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return session.UserID, nil
}
