// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証系メトリクスの結果ラベル
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeBlocked            = "blocked"
	OutcomeUnconfirmed        = "unconfirmed"
	OutcomeValidation         = "validation"
	OutcomeConflict           = "conflict"
	OutcomeAlreadyConfirmed   = "already_confirmed"
	OutcomeInvalidToken       = "invalid_or_expired"
	OutcomeNotFound           = "not_found"
	OutcomeDenied             = "denied"
	OutcomeError              = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェア・レンダラーから利用する。
type MetricsCollector interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
	RecordConfirmation(outcome string)
	RecordAdminAction(action, outcome string)
	RecordBlockedSessionRevoked()
	RecordHTTPStatus(statusCode int)
	RecordRenderLatency(duration time.Duration)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	confirmations  *prometheus.CounterVec
	adminActions   *prometheus.CounterVec
	blockedRevoked prometheus.Counter
	httpStatus     *prometheus.CounterVec
	renderLatency  prometheus.Histogram
	sessionsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debatehub_login_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debatehub_registration_total",
			Help: "ユーザー登録の結果別の合計数",
		}, []string{"outcome"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debatehub_confirmation_total",
			Help: "メールアドレス確認の結果別の合計数",
		}, []string{"outcome"}),
		adminActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debatehub_admin_action_total",
			Help: "管理操作の操作種別・結果別の合計数",
		}, []string{"action", "outcome"}),
		blockedRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "debatehub_blocked_session_revoked_total",
			Help: "停止ユーザーのリクエストで破棄されたセッション数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debatehub_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		renderLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "debatehub_render_latency_seconds",
			Help:    "Markdownレンダリングとサニタイズのレイテンシ（秒）",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "debatehub_sessions_purged_total",
			Help: "期限切れで削除されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.confirmations,
		c.adminActions,
		c.blockedRevoked,
		c.httpStatus,
		c.renderLatency,
		c.sessionsPurged,
	)

	return c
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRegistration はユーザー登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordConfirmation はメールアドレス確認の結果を記録する。
func (c *Collector) RecordConfirmation(outcome string) {
	c.confirmations.WithLabelValues(outcome).Inc()
}

// RecordAdminAction は管理操作の結果を記録する。
func (c *Collector) RecordAdminAction(action, outcome string) {
	c.adminActions.WithLabelValues(action, outcome).Inc()
}

// RecordBlockedSessionRevoked は停止ユーザーのセッション破棄を記録する。
func (c *Collector) RecordBlockedSessionRevoked() {
	c.blockedRevoked.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRenderLatency はレンダリングのレイテンシを記録する。
func (c *Collector) RecordRenderLatency(duration time.Duration) {
	c.renderLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordLogin(string) {}
func (NopCollector) RecordRegistration(string) {}
func (NopCollector) RecordConfirmation(string) {}
func (NopCollector) RecordAdminAction(string, string) {}
func (NopCollector) RecordBlockedSessionRevoked() {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRenderLatency(time.Duration) {}
func (NopCollector) RecordSessionsPurged(int64) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
