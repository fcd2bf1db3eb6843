package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/debatehub/internal/auth"
	"github.com/hitoshi/debatehub/internal/middleware"
	"github.com/hitoshi/debatehub/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	Confirm(ctx context.Context, token string) (auth.ConfirmOutcome, error)
	Login(ctx context.Context, email, password string, remember bool) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// LoginURL はメールアドレス確認後のリダイレクト先（BASE_URL + "/login"）。
	LoginURL string
	Cookie   middleware.SessionCookieConfig
}

// AuthHandler はアカウント登録・確認・ログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type loginResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
	Remember  bool      `json:"remember"`
}

// Register はユーザーを登録し、確認メールを送信する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if apiErr := decodeJSONBody(r, &in); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login はメールアドレスとパスワードで認証し、セッションCookieを設定する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	session, err := h.service.Login(r.Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// rememberなしの場合はブラウザを閉じるまでのCookieにする
	middleware.SetSessionCookie(w, h.config.Cookie, session, req.Remember)

	writeJSON(w, http.StatusOK, loginResponse{
		ExpiresAt: session.ExpiresAt,
		Remember:  session.Remember,
	})
}

// Logout はセッションを破棄する。セッションがなくても成功する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromRequest(r); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	middleware.ClearSessionCookie(w, h.config.Cookie)
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Confirm はメールアドレス確認リンクを処理し、結果をnoticeに載せてログイン画面へリダイレクトする。
// トークンの不正・期限切れもリダイレクトで通知し、エラーステータスは返さない。
// GET /confirm/{token}
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	outcome, err := h.service.Confirm(r.Context(), token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, h.config.LoginURL+"?notice="+url.QueryEscape(outcome.String()), http.StatusSeeOther)
}
