// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやミドルウェアから利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordUserCreated()
	RecordDuplicateLinkRecovered()
	RecordSessionResolution(outcome string)
	RecordHTTPStatus(statusCode int)
}

// セッション解決の結果ラベル。
const (
	SessionResolutionHit      = "hit"
	SessionResolutionMiss     = "miss"
	SessionResolutionSelfHeal = "self_heal"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess      prometheus.Counter
	loginFailure      *prometheus.CounterVec
	usersCreated      prometheus.Counter
	duplicateLink     prometheus.Counter
	sessionResolution *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authman_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_login_failure_total",
			Help: "ログイン失敗の合計数（原因別）",
		}, []string{"reason"}),
		usersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authman_users_created_total",
			Help: "初回ログインで作成されたユーザーの合計数",
		}),
		duplicateLink: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authman_duplicate_link_recovered_total",
			Help: "同時初回ログインのUNIQUE制約違反から回復した回数",
		}),
		sessionResolution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_session_resolution_total",
			Help: "セッション解決の合計数（hit/miss/self_heal別）",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFailure,
		c.usersCreated,
		c.duplicateLink,
		c.sessionResolution,
		c.httpStatus,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を原因別に記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFailure.WithLabelValues(reason).Inc()
}

// RecordUserCreated は新規ユーザー作成を記録する。
func (c *Collector) RecordUserCreated() {
	c.usersCreated.Inc()
}

// RecordDuplicateLinkRecovered は重複リンクからの回復を記録する。
func (c *Collector) RecordDuplicateLinkRecovered() {
	c.duplicateLink.Inc()
}

// RecordSessionResolution はセッション解決の結果を記録する。
func (c *Collector) RecordSessionResolution(outcome string) {
	c.sessionResolution.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

// NopCollector は何も記録しないコレクター。テストおよび計測無効時用。
type NopCollector struct{}

func (NopCollector) RecordLoginSuccess()            {}
func (NopCollector) RecordLoginFailure(string)      {}
func (NopCollector) RecordUserCreated()             {}
func (NopCollector) RecordDuplicateLinkRecovered()  {}
func (NopCollector) RecordSessionResolution(string) {}
func (NopCollector) RecordHTTPStatus(int)           {}

var _ MetricsCollector = NopCollector{}
