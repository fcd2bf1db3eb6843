package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/debatehub/internal/auth"
	"github.com/hitoshi/debatehub/internal/model"
)

// --- モック ---

type mockIdentityResolver struct {
	resolveFn func(ctx context.Context, sessionID string) (auth.Identity, error)
	calls     int
}

func (m *mockIdentityResolver) ResolveIdentity(ctx context.Context, sessionID string) (auth.Identity, error) {
	m.calls++
	if m.resolveFn != nil {
		return m.resolveFn(ctx, sessionID)
	}
	return auth.Identity{State: auth.IdentityAnonymous}, nil
}

var (
	activeUser      = &model.User{ID: "user-1", Username: "alice", Confirmed: true}
	unconfirmedUser = &model.User{ID: "user-2", Username: "bob"}
	adminUser       = &model.User{ID: "admin-1", Username: "root", Confirmed: true, IsAdmin: true}
)

func resolverFor(state auth.IdentityState, user *model.User) *mockIdentityResolver {
	return &mockIdentityResolver{
		resolveFn: func(_ context.Context, sessionID string) (auth.Identity, error) {
			return auth.Identity{State: state, User: user, Session: &model.Session{ID: sessionID, UserID: user.ID}}, nil
		},
	}
}

func withSession(req *http.Request, id string) *http.Request {
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: id})
	return req
}

// --- Identityミドルウェア ---

func TestIdentityMiddleware_NoCookie_Anonymous(t *testing.T) {
	resolver := &mockIdentityResolver{}

	var got auth.Identity
	handler := NewIdentityMiddleware(resolver, SessionCookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/opinions", nil))

	if got.State != auth.IdentityAnonymous {
		t.Errorf("State = %v, want anonymous", got.State)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times, want 0", resolver.calls)
	}
}

func TestIdentityMiddleware_ActiveSession_InjectsUser(t *testing.T) {
	var gotID string
	handler := NewIdentityMiddleware(resolverFor(auth.IdentityActive, activeUser), SessionCookieConfig{})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, ok := UserFromContext(r.Context()); ok {
				gotID = user.ID
			}
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withSession(httptest.NewRequest(http.MethodGet, "/auth/me", nil), "sess-1"))

	if gotID != "user-1" {
		t.Errorf("user ID = %q, want user-1", gotID)
	}
	if findCookie(w.Result(), SessionCookieName) != nil {
		t.Error("session cookie must not be touched for an active session")
	}
}

// 停止ユーザーのリクエストは匿名として扱い、Cookieを削除する
func TestIdentityMiddleware_BlockedUser_TreatedAsAnonymous(t *testing.T) {
	resolver := &mockIdentityResolver{
		resolveFn: func(context.Context, string) (auth.Identity, error) {
			return auth.Identity{State: auth.IdentityBlocked, User: &model.User{ID: "user-9", IsBlocked: true}}, nil
		},
	}

	var got auth.Identity
	handler := NewIdentityMiddleware(resolver, SessionCookieConfig{Secure: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withSession(httptest.NewRequest(http.MethodGet, "/api/opinions", nil), "sess-9"))

	if got.State != auth.IdentityAnonymous || got.User != nil {
		t.Errorf("identity = %+v, want anonymous", got)
	}
	c := findCookie(w.Result(), SessionCookieName)
	if c == nil || c.MaxAge >= 0 || c.Value != "" {
		t.Errorf("session cookie must be cleared, got %+v", c)
	}
}

func TestIdentityMiddleware_StaleSession_ClearsCookie(t *testing.T) {
	handler := NewIdentityMiddleware(&mockIdentityResolver{}, SessionCookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withSession(httptest.NewRequest(http.MethodGet, "/", nil), "expired"))

	if c := findCookie(w.Result(), SessionCookieName); c == nil || c.MaxAge >= 0 {
		t.Errorf("stale session cookie must be cleared, got %+v", c)
	}
}

func TestIdentityMiddleware_ResolverError_Returns500(t *testing.T) {
	resolver := &mockIdentityResolver{
		resolveFn: func(context.Context, string) (auth.Identity, error) {
			return auth.Identity{}, errors.New("db down")
		},
	}
	handler := NewIdentityMiddleware(resolver, SessionCookieConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withSession(httptest.NewRequest(http.MethodGet, "/", nil), "sess-1"))

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Result().StatusCode)
	}
}

// --- RequireUser / RequireAdmin ---

func TestRequireUser(t *testing.T) {
	tests := []struct {
		name       string
		identity   auth.Identity
		wantStatus int
		wantCode   string
	}{
		{"匿名", auth.Identity{State: auth.IdentityAnonymous}, http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"未確認", auth.Identity{State: auth.IdentityUnconfirmed, User: unconfirmedUser}, http.StatusForbidden, model.ErrCodeEmailUnconfirmed},
		{"有効", auth.Identity{State: auth.IdentityActive, User: activeUser}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/opinions", nil)
			req = req.WithContext(ContextWithIdentity(req.Context(), tt.identity))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantCode != "" {
				var body ErrorResponseBody
				json.NewDecoder(resp.Body).Decode(&body)
				if body.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name       string
		identity   auth.Identity
		wantStatus int
	}{
		{"匿名", auth.Identity{State: auth.IdentityAnonymous}, http.StatusForbidden},
		{"一般ユーザー", auth.Identity{State: auth.IdentityActive, User: activeUser}, http.StatusForbidden},
		{"管理者", auth.Identity{State: auth.IdentityActive, User: adminUser}, http.StatusOK},
		{"停止中の管理者", auth.Identity{State: auth.IdentityBlocked, User: adminUser}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			req = req.WithContext(ContextWithIdentity(req.Context(), tt.identity))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusForbidden {
				var body ErrorResponseBody
				json.NewDecoder(w.Result().Body).Decode(&body)
				if body.Code != model.ErrCodeForbidden {
					t.Errorf("code = %q, want %q", body.Code, model.ErrCodeForbidden)
				}
			}
		})
	}
}

// --- Cookie ---

func TestSetSessionCookie(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	session := &model.Session{ID: "sess-1", CreatedAt: created, ExpiresAt: created.Add(365 * 24 * time.Hour)}
	config := SessionCookieConfig{Secure: true, Domain: "example.com"}

	t.Run("rememberなし", func(t *testing.T) {
		w := httptest.NewRecorder()
		SetSessionCookie(w, config, session, false)

		c := findCookie(w.Result(), SessionCookieName)
		if c == nil {
			t.Fatal("cookie not set")
		}
		if c.MaxAge != 0 || !c.Expires.IsZero() {
			t.Errorf("browser-session cookie must not carry MaxAge/Expires: %+v", c)
		}
		if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
			t.Errorf("cookie attributes = %+v", c)
		}
	})

	t.Run("rememberあり", func(t *testing.T) {
		w := httptest.NewRecorder()
		SetSessionCookie(w, config, session, true)

		c := findCookie(w.Result(), SessionCookieName)
		if c == nil {
			t.Fatal("cookie not set")
		}
		if c.MaxAge != 365*24*60*60 {
			t.Errorf("MaxAge = %d, want one year", c.MaxAge)
		}
	})
}

func TestUserFromContext_NoValue(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("expected no user for empty context")
	}
}

func TestUserFromContext_UnconfirmedIsAuthenticated(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), auth.Identity{State: auth.IdentityUnconfirmed, User: unconfirmedUser})
	user, ok := UserFromContext(ctx)
	if !ok || user.ID != "user-2" {
		t.Errorf("UserFromContext() = %v, %v", user, ok)
	}
}
