package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/debatehub/internal/auth"
	"github.com/hitoshi/debatehub/internal/middleware"
	"github.com/hitoshi/debatehub/internal/model"
)

var testAuthConfig = AuthHandlerConfig{
	LoginURL: "https://debate.example.com/login",
	Cookie:   middleware.SessionCookieConfig{Secure: true},
}

func TestAuthHandler_Register_Created(t *testing.T) {
	var got auth.RegisterInput
	svc := &mockAuthService{
		registerFn: func(_ context.Context, in auth.RegisterInput) (*model.User, error) {
			got = in
			return &model.User{ID: "user-1", Email: "alice@example.com", Username: "alice", PasswordHash: "$argon2id$secret"}, nil
		},
	}
	h := NewAuthHandler(svc, testAuthConfig)

	w := httptest.NewRecorder()
	h.Register(w, jsonRequest(http.MethodPost, "/auth/register",
		`{"email":"Alice@Example.com","username":"alice","password":"pw-123456","confirm_password":"pw-123456"}`))

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}
	if got.Email != "Alice@Example.com" || got.ConfirmPassword != "pw-123456" {
		t.Errorf("input = %+v", got)
	}

	var raw map[string]any
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["id"] != "user-1" || raw["confirmed"] != false {
		t.Errorf("body = %v", raw)
	}
	if _, ok := raw["password_hash"]; ok {
		t.Error("password hash must not be exposed")
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"JSON不正", `{`, nil, http.StatusBadRequest, model.ErrCodeValidation},
		{"入力検証エラー", `{}`, model.NewValidationError(map[string]string{"email": "必須項目です。"}), http.StatusBadRequest, model.ErrCodeValidation},
		{"重複", `{}`, model.NewConflictError(map[string]string{"username": "x"}), http.StatusConflict, model.ErrCodeConflict},
		{"メール送信失敗", `{}`, errors.New("smtp down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				registerFn: func(context.Context, auth.RegisterInput) (*model.User, error) {
					return nil, tt.err
				},
			}
			w := httptest.NewRecorder()
			NewAuthHandler(svc, testAuthConfig).Register(w, jsonRequest(http.MethodPost, "/auth/register", tt.body))

			if w.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_Register_ConflictCarriesFields(t *testing.T) {
	svc := &mockAuthService{
		registerFn: func(context.Context, auth.RegisterInput) (*model.User, error) {
			return nil, model.NewConflictError(map[string]string{"email": "このメールアドレスは既に登録されています。"})
		},
	}
	w := httptest.NewRecorder()
	NewAuthHandler(svc, testAuthConfig).Register(w, jsonRequest(http.MethodPost, "/auth/register", `{}`))

	if body := decodeError(t, w); body.Fields["email"] == "" {
		t.Errorf("fields = %v, want email", body.Fields)
	}
}

func TestAuthHandler_Login_SetsCookie(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name       string
		remember   bool
		wantMaxAge bool
	}{
		{"rememberなし", false, false},
		{"rememberあり", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotEmail string
			var gotRemember bool
			svc := &mockAuthService{
				loginFn: func(_ context.Context, email, _ string, remember bool) (*model.Session, error) {
					gotEmail, gotRemember = email, remember
					return &model.Session{ID: "sess-1", UserID: "user-1", Remember: remember, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}, nil
				},
			}
			body := `{"email":"alice@example.com","password":"pw","remember":false}`
			if tt.remember {
				body = `{"email":"alice@example.com","password":"pw","remember":true}`
			}

			w := httptest.NewRecorder()
			NewAuthHandler(svc, testAuthConfig).Login(w, jsonRequest(http.MethodPost, "/auth/login", body))

			resp := w.Result()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if gotEmail != "alice@example.com" || gotRemember != tt.remember {
				t.Errorf("login called with %q, %v", gotEmail, gotRemember)
			}
			c := findCookie(resp, middleware.SessionCookieName)
			if c == nil || c.Value != "sess-1" {
				t.Fatalf("session cookie = %+v", c)
			}
			if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode {
				t.Errorf("cookie attributes = %+v", c)
			}
			if (c.MaxAge > 0) != tt.wantMaxAge {
				t.Errorf("MaxAge = %d, wantMaxAge %v", c.MaxAge, tt.wantMaxAge)
			}
		})
	}
}

func TestAuthHandler_Login_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"認証情報不一致", model.NewInvalidCredentialsError(), http.StatusUnauthorized, model.ErrCodeInvalidCredentials},
		{"停止中", model.NewAccountBlockedError(), http.StatusForbidden, model.ErrCodeAccountBlocked},
		{"未確認", model.NewEmailUnconfirmedError(), http.StatusForbidden, model.ErrCodeEmailUnconfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				loginFn: func(context.Context, string, string, bool) (*model.Session, error) {
					return nil, tt.err
				},
			}
			w := httptest.NewRecorder()
			NewAuthHandler(svc, testAuthConfig).Login(w, jsonRequest(http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"pw"}`))

			if w.Result().StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			if body := decodeError(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if findCookie(w.Result(), middleware.SessionCookieName) != nil {
				t.Error("session cookie must not be set on failure")
			}
		})
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	t.Run("セッションあり", func(t *testing.T) {
		var deleted string
		svc := &mockAuthService{
			logoutFn: func(_ context.Context, id string) error {
				deleted = id
				return nil
			},
		}
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
		w := httptest.NewRecorder()
		NewAuthHandler(svc, testAuthConfig).Logout(w, req)

		if w.Result().StatusCode != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Result().StatusCode)
		}
		if deleted != "sess-1" {
			t.Errorf("deleted session = %q, want sess-1", deleted)
		}
		if c := findCookie(w.Result(), middleware.SessionCookieName); c == nil || c.MaxAge >= 0 {
			t.Errorf("session cookie must be cleared, got %+v", c)
		}
	})

	t.Run("セッションなし", func(t *testing.T) {
		called := false
		svc := &mockAuthService{
			logoutFn: func(context.Context, string) error {
				called = true
				return nil
			},
		}
		w := httptest.NewRecorder()
		NewAuthHandler(svc, testAuthConfig).Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		if w.Result().StatusCode != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Result().StatusCode)
		}
		if called {
			t.Error("service must not be called without a session")
		}
	})

	t.Run("削除失敗でもCookieはクリア", func(t *testing.T) {
		svc := &mockAuthService{
			logoutFn: func(context.Context, string) error { return errors.New("db down") },
		}
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "sess-1"})
		w := httptest.NewRecorder()
		NewAuthHandler(svc, testAuthConfig).Logout(w, req)

		if w.Result().StatusCode != http.StatusNoContent {
			t.Errorf("status = %d, want 204", w.Result().StatusCode)
		}
		if findCookie(w.Result(), middleware.SessionCookieName) == nil {
			t.Error("session cookie must be cleared")
		}
	})
}

func TestAuthHandler_Me(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig)

	t.Run("ログイン中", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, withIdentity(httptest.NewRequest(http.MethodGet, "/auth/me", nil), activeUser))

		var body userResponse
		if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if body.ID != "user-1" || body.Username != "alice" || !body.Confirmed {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("匿名", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Result().StatusCode)
		}
	})
}

// 確認リンクはトークンの状態に関わらず303でログイン画面へ戻す
func TestAuthHandler_Confirm_RedirectsWithNotice(t *testing.T) {
	tests := []struct {
		outcome auth.ConfirmOutcome
		notice  string
	}{
		{auth.ConfirmSucceeded, "confirmed"},
		{auth.ConfirmAlreadyConfirmed, "already_confirmed"},
		{auth.ConfirmInvalidOrExpired, "invalid_or_expired"},
		{auth.ConfirmAccountNotFound, "account_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.notice, func(t *testing.T) {
			var gotToken string
			svc := &mockAuthService{
				confirmFn: func(_ context.Context, token string) (auth.ConfirmOutcome, error) {
					gotToken = token
					return tt.outcome, nil
				},
			}
			r := chi.NewRouter()
			r.Get("/confirm/{token}", NewAuthHandler(svc, testAuthConfig).Confirm)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/confirm/abc.def.ghi", nil))

			if w.Result().StatusCode != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", w.Result().StatusCode)
			}
			want := "https://debate.example.com/login?notice=" + tt.notice
			if loc := w.Result().Header.Get("Location"); loc != want {
				t.Errorf("Location = %q, want %q", loc, want)
			}
			if gotToken != "abc.def.ghi" {
				t.Errorf("token = %q", gotToken)
			}
		})
	}
}

func TestAuthHandler_Confirm_StorageError(t *testing.T) {
	svc := &mockAuthService{
		confirmFn: func(context.Context, string) (auth.ConfirmOutcome, error) {
			return 0, errors.New("db down")
		},
	}
	r := chi.NewRouter()
	r.Get("/confirm/{token}", NewAuthHandler(svc, testAuthConfig).Confirm)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/confirm/x", nil))

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Result().StatusCode)
	}
}
