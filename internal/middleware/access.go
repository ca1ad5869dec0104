package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/hitoshi/clubster/internal/metrics"
	"github.com/hitoshi/clubster/internal/model"
)

// Decision はアクセス制御の判定結果。リクエストごとに必ずいずれか1つで終端する。
type Decision string

const (
	// DecisionPublic は公開パスのため無条件に通過させる。
	DecisionPublic Decision = "public"
	// DecisionNoSession はセッションが無いためログインへリダイレクトする。
	DecisionNoSession Decision = "no_session"
	// DecisionNoClub はクラブ未登録のためクラブ認証ページへリダイレクトする。
	DecisionNoClub Decision = "no_club"
	// DecisionAllow はすべての検査を通過した。
	DecisionAllow Decision = "allow"
)

// defaultStaticPrefixes は静的アセットとAPIのパスプレフィックス。
// APIハンドラーは自身で認証を行うため、ここでは素通しする。
var defaultStaticPrefixes = []string{"/api", "/_next/", "/static/", "/images/", "/assets/"}

var defaultStaticExtensions = []string{
	".css", ".js", ".map", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico",
	".webp", ".avif", ".txt", ".xml", ".woff", ".woff2", ".ttf",
}

// AccessPolicy はアプリケーションごとのアクセス制御ルール。
type AccessPolicy struct {
	App              string
	PublicPages      []string
	PublicPrefixes   []string
	StaticExtensions []string
	LoginPath        string
	RequireClub      bool
	VerifyClubPath   string
}

// CustomerPolicy は顧客向けアプリのポリシーを返す。
func CustomerPolicy() AccessPolicy {
	return AccessPolicy{
		App: "customer",
		PublicPages: []string{
			"/", "/login", "/signup", "/privacy-policy", "/terms-of-service",
			"/support", "/basket", "/club-details",
		},
		PublicPrefixes:   defaultStaticPrefixes,
		StaticExtensions: defaultStaticExtensions,
		LoginPath:        "/login",
	}
}

// ManagerPolicy はマネージャー向けアプリのポリシーを返す。
// クラブ未登録のマネージャーは/verify-club以外のページに到達できない。
func ManagerPolicy() AccessPolicy {
	return AccessPolicy{
		App: "manager",
		PublicPages: []string{
			"/", "/login", "/signup", "/privacy-policy", "/terms-of-service", "/support",
		},
		PublicPrefixes:   defaultStaticPrefixes,
		StaticExtensions: defaultStaticExtensions,
		LoginPath:        "/login",
		RequireClub:      true,
		VerifyClubPath:   "/verify-club",
	}
}

// IsPublic はパスが公開許可リストまたは静的アセットに該当するかを判定する。
// 判定は正規化したパスに対して行うため、"/login/../events"は公開扱いにならない。
func (p AccessPolicy) IsPublic(reqPath string) bool {
	reqPath = canonicalPath(reqPath)
	for _, page := range p.PublicPages {
		if matchesPage(reqPath, page) {
			return true
		}
	}
	for _, prefix := range p.PublicPrefixes {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(reqPath, prefix) {
				return true
			}
			continue
		}
		if matchesPage(reqPath, prefix) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(reqPath))
	if ext == "" {
		return false
	}
	for _, e := range p.StaticExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// canonicalPath はドットセグメントと重複スラッシュを解決した絶対パスを返す。
func canonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// matchesPage は完全一致かサブパスかを判定する。"/"は"/"のみに一致する。
func matchesPage(reqPath, page string) bool {
	if reqPath == page {
		return true
	}
	if page == "/" {
		return false
	}
	return strings.HasPrefix(reqPath, page+"/")
}

// ClubChecker はマネージャーがクラブを所有しているかを問い合わせる。
type ClubChecker interface {
	HasClub(ctx context.Context, managerID string) (bool, error)
}

// SessionResolver はリクエストからセッションを解決する。
// セッションが無い場合は(nil, nil)を返す。
type SessionResolver interface {
	SessionFromRequest(r *http.Request) (*model.Session, error)
}

// Decide はリクエストのアクセス可否を判定する。
// クラブ照会のエラーはクラブ無しとして扱う。
func (p AccessPolicy) Decide(ctx context.Context, reqPath string, session *model.Session, clubs ClubChecker) Decision {
	reqPath = canonicalPath(reqPath)
	if p.IsPublic(reqPath) {
		return DecisionPublic
	}
	if session == nil || session.UserID == "" {
		return DecisionNoSession
	}
	if !p.RequireClub || reqPath == p.VerifyClubPath {
		return DecisionAllow
	}
	if clubs == nil {
		return DecisionNoClub
	}
	ok, err := clubs.HasClub(ctx, session.UserID)
	if err != nil {
		slog.Warn("club lookup failed, denying access",
			slog.String("user_id", session.UserID),
			slog.String("path", reqPath),
			slog.String("error", err.Error()),
		)
		return DecisionNoClub
	}
	if !ok {
		return DecisionNoClub
	}
	return DecisionAllow
}

// NewAccessMiddleware はページへのアクセスを制御するミドルウェアを返す。
// 解決したセッションは後続ハンドラーのためにコンテキストに格納する。
func NewAccessMiddleware(policy AccessPolicy, sessions SessionResolver, clubs ClubChecker, m metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if m == nil {
		m = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := sessions.SessionFromRequest(r)
			if err != nil {
				slog.Debug("session rejected, treating request as anonymous",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				session = nil
			}
			if session != nil {
				r = r.WithContext(ContextWithSession(r.Context(), session))
			}

			decision := policy.Decide(r.Context(), r.URL.Path, session, clubs)
			m.RecordAccessDecision(policy.App, string(decision))

			switch decision {
			case DecisionPublic, DecisionAllow:
				next.ServeHTTP(w, r)
			case DecisionNoSession:
				target := policy.LoginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
				http.Redirect(w, r, target, http.StatusFound)
			case DecisionNoClub:
				http.Redirect(w, r, policy.VerifyClubPath, http.StatusFound)
			default:
				// 未知の判定は拒否
				http.Redirect(w, r, policy.LoginPath, http.StatusFound)
			}
		})
	}
}
