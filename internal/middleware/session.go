// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/debatehub/internal/auth"
	"github.com/hitoshi/debatehub/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに利用者を格納するためのキー。
var identityContextKey = contextKey("identity")

// IdentityResolver はセッションIDから利用者を解決する。
// auth.Serviceが実装する。
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, sessionID string) (auth.Identity, error)
}

// SessionCookieConfig はセッションCookieの属性。
type SessionCookieConfig struct {
	Secure bool
	Domain string
	Path   string
}

func (c SessionCookieConfig) path() string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

// SetSessionCookie はセッションIDをHttpOnly Cookieに設定する。
// persistentが偽の場合はブラウザ終了までのセッションCookieになる。
func SetSessionCookie(w http.ResponseWriter, config SessionCookieConfig, session *model.Session, persistent bool) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     config.path(),
		Domain:   config.Domain,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if persistent {
		cookie.Expires = session.ExpiresAt
		cookie.MaxAge = int(session.ExpiresAt.Sub(session.CreatedAt).Seconds())
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie はセッションCookieを削除する。
func ClearSessionCookie(w http.ResponseWriter, config SessionCookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     config.path(),
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionIDFromRequest はCookieからセッションIDを取得する。未設定の場合は空文字を返す。
func SessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// NewIdentityMiddleware はセッションCookieから利用者を解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// セッションを持つすべてのリクエストで停止状態を確認し、
// 停止ユーザーはCookieを削除したうえで匿名として処理を続ける。
// 認可の判定はRequireUser / RequireAdminが行う。
func NewIdentityMiddleware(resolver IdentityResolver, cookieConfig SessionCookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionIDFromRequest(r)
			if sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := resolver.ResolveIdentity(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to resolve identity",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			switch identity.State {
			case auth.IdentityBlocked:
				ClearSessionCookie(w, cookieConfig)
				identity = auth.Identity{State: auth.IdentityAnonymous}
			case auth.IdentityAnonymous:
				// 期限切れや削除済みのセッションが残っている
				ClearSessionCookie(w, cookieConfig)
			}

			recordUserIDForLog(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
		})
	}
}

// RequireUser はログイン済みかつメールアドレス確認済みの利用者のみを通すミドルウェア。
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := IdentityFromContext(r.Context())
		switch identity.State {
		case auth.IdentityActive:
			next.ServeHTTP(w, r)
		case auth.IdentityUnconfirmed:
			WriteErrorResponse(w, http.StatusForbidden, model.NewEmailUnconfirmedError())
		default:
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		}
	})
}

// RequireAdmin は管理者のみを通すミドルウェア。
// 未ログインを含め、管理者以外には理由を区別せず403を返す。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || !user.IsAdmin {
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityFromContext はリクエストコンテキストから利用者を取得する。
// 未設定の場合は匿名を返す。
func IdentityFromContext(ctx context.Context) auth.Identity {
	identity, ok := ctx.Value(identityContextKey).(auth.Identity)
	if !ok {
		return auth.Identity{State: auth.IdentityAnonymous}
	}
	return identity
}

// UserFromContext はログイン中の利用者を取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	identity := IdentityFromContext(ctx)
	if !identity.Authenticated() || identity.User == nil {
		return nil, false
	}
	return identity.User, true
}

// ContextWithIdentity はコンテキストに利用者を注入する。
func ContextWithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
