package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/debatehub/internal/metrics"
	"github.com/hitoshi/debatehub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	IdentityResolver  middleware.IdentityResolver
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 議論
	DebateService DebateServiceInterface

	// 管理
	UserService UserServiceInterface

	// URLPrefix はすべてのルートの前に付くパス（APP_URL_PREFIX）。
	URLPrefix string
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Identity → CSRF → (RequireUser | RequireAdmin)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// 運用系エンドポイントはセッションを解決しない
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	debateHandler := NewDebateHandler(deps.DebateService)
	userHandler := NewUserHandler(deps.UserService)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.IdentityResolver, deps.AuthConfig.Cookie))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})
		r.Get("/confirm/{token}", authHandler.Confirm)

		// 議論（閲覧は匿名でも可能）
		r.Route("/api/opinions", func(r chi.Router) {
			r.Get("/", debateHandler.ListOpinions)
			r.With(middleware.RequireUser).Post("/", debateHandler.CreateOpinion)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", debateHandler.GetOpinion)
				r.With(middleware.RequireUser).Post("/arguments", debateHandler.CreateArgument)
			})
		})
		r.Route("/api/arguments/{id}", func(r chi.Router) {
			r.Get("/", debateHandler.GetArgument)
			r.With(middleware.RequireUser).Post("/reasoning", debateHandler.CreateReasoning)
		})

		// 管理
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			r.Get("/users", userHandler.ListUsers)
			r.Post("/users/actions", userHandler.ApplyAction)
		})
	})

	if deps.URLPrefix == "" || deps.URLPrefix == "/" {
		return r
	}

	root := chi.NewRouter()
	root.Mount(deps.URLPrefix, r)
	return root
}
