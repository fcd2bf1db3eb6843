package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/debatehub/internal/auth"
	"github.com/hitoshi/debatehub/internal/config"
	"github.com/hitoshi/debatehub/internal/database"
	"github.com/hitoshi/debatehub/internal/debate"
	"github.com/hitoshi/debatehub/internal/handler"
	"github.com/hitoshi/debatehub/internal/logger"
	"github.com/hitoshi/debatehub/internal/mail"
	"github.com/hitoshi/debatehub/internal/metrics"
	"github.com/hitoshi/debatehub/internal/middleware"
	"github.com/hitoshi/debatehub/internal/repository"
	"github.com/hitoshi/debatehub/internal/security"
	"github.com/hitoshi/debatehub/internal/user"
	"github.com/hitoshi/debatehub/internal/worker/cleanup"
)

const (
	shutdownTimeout = 30 * time.Second
	dbPingTimeout   = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(healthcheckURL(port, os.Getenv("APP_URL_PREFIX")))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouterDeps はサーバーモードの依存関係を組み立てる。
func buildRouterDeps(cfg *config.Config, db *sql.DB, reg *prometheus.Registry, collector metrics.MetricsCollector) (*handler.RouterDeps, error) {
	// 1. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	debateRepo := repository.NewPostgresDebateRepo(db)

	// 2. メール送信
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.MailServer,
		Port:     cfg.MailPort,
		UseTLS:   cfg.MailUseTLS,
		Username: cfg.MailUsername,
		Password: cfg.MailPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure mail sender: %w", err)
	}
	mailer := mail.NewService(sender, cfg.MailDefaultSender, cfg.AppName)

	// 3. ドメインサービス
	authService := auth.NewService(
		userRepo, sessionRepo,
		auth.NewPasswordVault(auth.DefaultArgon2Params),
		auth.NewTokenSigner(cfg.SecretKey),
		mailer, collector,
		auth.ServiceConfig{
			SessionMaxAge:  cfg.SessionMaxAge,
			RememberMaxAge: cfg.RememberMaxAge,
			ConfirmURLBase: cfg.ConfirmURLBase(),
		},
	)
	debateService := debate.NewService(debateRepo, security.NewContentRenderer(collector))
	userService := user.NewService(userRepo, sessionRepo, collector)

	// 4. ルーター依存
	cookie := middleware.SessionCookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
		Path:   cookiePath(cfg.AppURLPrefix),
	}
	return &handler.RouterDeps{
		IdentityResolver:  authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:         slog.Default(),
		Metrics:        collector,
		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			LoginURL: cfg.LoginURL(),
			Cookie:   cookie,
		},
		DebateService: debateService,
		UserService:   userService,
		URLPrefix:     cfg.AppURLPrefix,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	reg, collector := newRegistry()
	deps, err := buildRouterDeps(cfg, db, reg, collector)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return serveUntilDone(ctx, server, "API server")
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションを定期的に削除し、/metrics と /health を公開する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	reg, collector := newRegistry()
	job := cleanup.NewSessionPurgeJob(db, slog.Default(), collector)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	mux.Handle("/health", handler.NewHealthHandler(db))
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	go job.Start(ctx, cfg.SessionCleanupInterval)

	return serveUntilDone(ctx, server, "worker")
}

// serveUntilDone はサーバーを起動し、ctxの終了で停止する。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// healthcheckURL はヘルスチェック先のURLを組み立てる。
func healthcheckURL(port, prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix = "/" + prefix
	}
	return fmt.Sprintf("http://localhost:%s%s/health", port, prefix)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(target string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// cookiePath はセッションCookieのPathを返す。
func cookiePath(prefix string) string {
	if prefix == "" {
		return "/"
	}
	return prefix
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
