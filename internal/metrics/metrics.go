// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやハンドラーから利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int, duration time.Duration)
	RecordRateLimitDecision(limiter string, allowed bool)
	SetActiveWindows(n int)
	RecordAuthFailure(reason string)
	RecordLogin(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
	rateLimit     *prometheus.CounterVec
	activeWindows prometheus.Gauge
	authFailures  *prometheus.CounterVec
	logins        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_http_requests_total",
			Help: "メソッド・ステータスコード別のレスポンス数",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatekeeper_http_request_duration_seconds",
			Help:    "リクエスト処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		rateLimit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_rate_limit_decisions_total",
			Help: "レート制限の判定結果",
		}, []string{"limiter", "decision"}),
		activeWindows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gatekeeper_rate_limit_active_windows",
			Help: "保持しているレート制限ウィンドウ数",
		}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_auth_failures_total",
			Help: "理由別の認証・認可失敗数",
		}, []string{"reason"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_login_attempts_total",
			Help: "結果別のログイン試行数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.httpLatency,
		c.rateLimit,
		c.activeWindows,
		c.authFailures,
		c.logins,
	)

	return c
}

// RecordHTTPRequest はレスポンスのステータスコードと処理時間を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRateLimitDecision はレート制限の許可・拒否を記録する。
func (c *Collector) RecordRateLimitDecision(limiter string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	c.rateLimit.WithLabelValues(limiter, decision).Inc()
}

// SetActiveWindows は保持中のウィンドウ数を設定する。
func (c *Collector) SetActiveWindows(n int) {
	c.activeWindows.Set(float64(n))
}

// RecordAuthFailure は認証・認可の失敗を理由別に記録する。
func (c *Collector) RecordAuthFailure(reason string) {
	c.authFailures.WithLabelValues(reason).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
// メトリクスを使わないテストや構成で利用する。
type NopCollector struct{}

func (NopCollector) RecordHTTPRequest(string, int, time.Duration) {}
func (NopCollector) RecordRateLimitDecision(string, bool) {}
func (NopCollector) SetActiveWindows(int) {}
func (NopCollector) RecordAuthFailure(string) {}
func (NopCollector) RecordLogin(bool) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
