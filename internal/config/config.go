package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Application
	AppName      string
	AppURLPrefix string
	SecretKey    string

	// Mail
	MailServer        string
	MailPort          int
	MailUseTLS        bool
	MailUsername      string
	MailPassword      string
	MailDefaultSender string

	// Session
	SessionMaxAge          int
	RememberMaxAge         int
	SessionCleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SecretKey = os.Getenv("SECRET_KEY")
	if cfg.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AppName = getEnvString("APP_NAME", "Debate Hub")
	cfg.AppURLPrefix = normalizePrefix(os.Getenv("APP_URL_PREFIX"))
	cfg.MailServer = getEnvString("MAIL_SERVER", "localhost")
	cfg.MailPort = getEnvInt("MAIL_PORT", 25)
	cfg.MailUseTLS = getEnvBool("MAIL_USE_TLS", false)
	cfg.MailUsername = getEnvString("MAIL_USERNAME", "")
	cfg.MailPassword = getEnvString("MAIL_PASSWORD", "")
	cfg.MailDefaultSender = getEnvString("MAIL_DEFAULT_SENDER", "noreply@example.com")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RememberMaxAge = getEnvInt("REMEMBER_MAX_AGE", 31536000)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")

	return cfg, nil
}

// ConfirmURLBase は確認リンクの先頭部分（BASE_URL + APP_URL_PREFIX）を返す。
func (c *Config) ConfirmURLBase() string {
	return c.BaseURL + c.AppURLPrefix
}

// LoginURL はメールアドレス確認後のリダイレクト先を返す。
func (c *Config) LoginURL() string {
	return c.BaseURL + "/login"
}

// normalizePrefix は "/debate/" や "debate" を "/debate" にそろえる。空やルートは空文字。
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
