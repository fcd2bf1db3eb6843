// Package auth はパスワード認証、メールアドレス確認、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/debatehub/internal/metrics"
	"github.com/hitoshi/debatehub/internal/model"
	"github.com/hitoshi/debatehub/internal/repository"
	"github.com/hitoshi/debatehub/internal/validation"
)

// ConfirmationMailer は確認メールを送信する。
type ConfirmationMailer interface {
	SendConfirmation(ctx context.Context, to, username, confirmURL string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge  int    // 通常セッションの有効期間（秒）
	RememberMaxAge int    // remember指定時のセッション有効期間（秒）
	ConfirmURLBase string // BASE_URL + APP_URL_PREFIX。末尾に "/confirm/<token>" を付けてリンクにする
	ConfirmMaxAge  time.Duration
}

// RegisterInput はユーザー登録の入力。
type RegisterInput struct {
	Email           string `json:"email" validate:"required,notblank,email,max=255"`
	Username        string `json:"username" validate:"required,notblank,max=80"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// ConfirmOutcome はメールアドレス確認の結果。
type ConfirmOutcome int

const (
	ConfirmSucceeded ConfirmOutcome = iota
	ConfirmAlreadyConfirmed
	ConfirmInvalidOrExpired
	ConfirmAccountNotFound
)

// String はリダイレクト先のnoticeパラメータに使う識別子を返す。
func (o ConfirmOutcome) String() string {
	switch o {
	case ConfirmSucceeded:
		return "confirmed"
	case ConfirmAlreadyConfirmed:
		return "already_confirmed"
	case ConfirmInvalidOrExpired:
		return "invalid_or_expired"
	case ConfirmAccountNotFound:
		return "account_not_found"
	default:
		return "unknown"
	}
}

// IdentityState はリクエスト毎に解決される利用者の状態。
type IdentityState int

const (
	IdentityAnonymous IdentityState = iota
	IdentityUnconfirmed
	IdentityBlocked
	IdentityActive
)

// Identity はセッションから解決した利用者。
// Blockedの場合、セッションは既に破棄されておりUserは参照用にのみ保持する。
type Identity struct {
	State   IdentityState
	User    *model.User
	Session *model.Session
}

// Authenticated はログイン中として扱える状態かどうかを返す。
func (i Identity) Authenticated() bool {
	return i.State == IdentityUnconfirmed || i.State == IdentityActive
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	vault       *PasswordVault
	tokens      *TokenSigner
	mailer      ConfirmationMailer
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	vault *PasswordVault,
	tokens *TokenSigner,
	mailer ConfirmationMailer,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if config.ConfirmMaxAge <= 0 {
		config.ConfirmMaxAge = ConfirmationMaxAge
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		vault:       vault,
		tokens:      tokens,
		mailer:      mailer,
		metrics:     collector,
		config:      config,
		now:         time.Now,
	}
}

// NormalizeEmail はメールアドレスを保存・照合用の形式に正規化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はユーザーを登録し、確認メールを送信する。
// 重複チェックは利用者向けの事前確認であり、同時登録の最終判定はストレージの一意制約が行う。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	if verr := validation.Struct(&in); verr != nil {
		s.metrics.RecordRegistration(metrics.OutcomeValidation)
		return nil, verr
	}

	email := NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	conflicts := make(map[string]string)
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		conflicts["email"] = "このメールアドレスは既に登録されています。"
	}
	existing, err = s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if existing != nil {
		conflicts["username"] = "このユーザー名は既に使用されています。"
	}
	if len(conflicts) > 0 {
		s.metrics.RecordRegistration(metrics.OutcomeConflict)
		return nil, model.NewConflictError(conflicts)
	}

	hash, err := s.vault.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			s.metrics.RecordRegistration(metrics.OutcomeConflict)
			return nil, model.NewConflictError(map[string]string{"email": "このメールアドレスは既に登録されています。"})
		case errors.Is(err, repository.ErrDuplicateUsername):
			s.metrics.RecordRegistration(metrics.OutcomeConflict)
			return nil, model.NewConflictError(map[string]string{"username": "このユーザー名は既に使用されています。"})
		}
		s.metrics.RecordRegistration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		s.metrics.RecordRegistration(metrics.OutcomeError)
		return nil, err
	}
	confirmURL := strings.TrimRight(s.config.ConfirmURLBase, "/") + "/confirm/" + token
	if err := s.mailer.SendConfirmation(ctx, user.Email, user.Username, confirmURL); err != nil {
		s.metrics.RecordRegistration(metrics.OutcomeError)
		return nil, fmt.Errorf("failed to send confirmation mail: %w", err)
	}

	s.metrics.RecordRegistration(metrics.OutcomeSuccess)
	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

// Confirm は確認トークンを検証し、該当ユーザーを確認済みにする。
// トークンの問題は全て結果値で返し、errorはストレージ障害のみとする。
func (s *Service) Confirm(ctx context.Context, token string) (ConfirmOutcome, error) {
	email, ok := s.tokens.Verify(token, s.config.ConfirmMaxAge)
	if !ok {
		s.metrics.RecordConfirmation(metrics.OutcomeInvalidToken)
		return ConfirmInvalidOrExpired, nil
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return 0, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.metrics.RecordConfirmation(metrics.OutcomeNotFound)
		return ConfirmAccountNotFound, nil
	}

	changed, err := s.userRepo.MarkConfirmed(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm user: %w", err)
	}
	if !changed {
		s.metrics.RecordConfirmation(metrics.OutcomeAlreadyConfirmed)
		return ConfirmAlreadyConfirmed, nil
	}

	s.metrics.RecordConfirmation(metrics.OutcomeSuccess)
	slog.Info("email confirmed", slog.String("user_id", user.ID))
	return ConfirmSucceeded, nil
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// 判定順序: 認証情報 → 停止 → 未確認。存在しないユーザーと誤ったパスワードは同じエラーになる。
func (s *Service) Login(ctx context.Context, email, password string, remember bool) (*model.Session, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 応答時間からユーザーの存在を推測されないよう、ダミーのハッシュで照合する
		s.vault.Verify(password, s.dummyPasswordHash())
		s.metrics.RecordLogin(metrics.OutcomeInvalidCredentials)
		return nil, model.NewInvalidCredentialsError()
	}
	if !s.vault.Verify(password, user.PasswordHash) {
		s.metrics.RecordLogin(metrics.OutcomeInvalidCredentials)
		return nil, model.NewInvalidCredentialsError()
	}
	if user.IsBlocked {
		s.metrics.RecordLogin(metrics.OutcomeBlocked)
		return nil, model.NewAccountBlockedError()
	}
	if !user.Confirmed {
		s.metrics.RecordLogin(metrics.OutcomeUnconfirmed)
		return nil, model.NewEmailUnconfirmedError()
	}

	session, err := s.createSession(ctx, user.ID, remember)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.metrics.RecordLogin(metrics.OutcomeSuccess)
	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.Bool("remember", remember),
	)
	return session, nil
}

// Logout はセッションを破棄する。存在しないセッションでもエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user logged out")
	return nil
}

// ResolveIdentity はセッションIDから利用者の状態を解決する。リクエスト毎に呼び出す。
// 停止中のユーザーのセッションはその場で破棄し、IdentityBlockedを返す。
func (s *Service) ResolveIdentity(ctx context.Context, sessionID string) (Identity, error) {
	if sessionID == "" {
		return Identity{State: IdentityAnonymous}, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return Identity{State: IdentityAnonymous}, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return Identity{State: IdentityAnonymous}, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return Identity{State: IdentityAnonymous}, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return Identity{State: IdentityAnonymous}, nil
	}

	if user.IsBlocked {
		if err := s.sessionRepo.DeleteByID(ctx, session.ID); err != nil {
			return Identity{State: IdentityAnonymous}, fmt.Errorf("failed to revoke blocked session: %w", err)
		}
		s.metrics.RecordBlockedSessionRevoked()
		slog.Info("blocked user session revoked", slog.String("user_id", user.ID))
		return Identity{State: IdentityBlocked, User: user}, nil
	}

	if !user.Confirmed {
		return Identity{State: IdentityUnconfirmed, User: user, Session: session}, nil
	}
	return Identity{State: IdentityActive, User: user, Session: session}, nil
}

// SessionLifetime はremember指定に応じたセッション有効期間を返す。
func (s *Service) SessionLifetime(remember bool) time.Duration {
	if remember {
		return time.Duration(s.config.RememberMaxAge) * time.Second
	}
	return time.Duration(s.config.SessionMaxAge) * time.Second
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, remember bool) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Remember:  remember,
		ExpiresAt: now.Add(s.SessionLifetime(remember)),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.vault.Hash("dummy-password-for-timing")
		if err != nil {
			// 照合は必ず失敗するが、処理時間の平準化はできない
			slog.Warn("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
