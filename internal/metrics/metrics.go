// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stripe連携の結果ラベル
const (
	LinkResultSuccess          = "success"
	LinkResultValidationError  = "validation_error"
	LinkResultInvalidState     = "invalid_state"
	LinkResultProviderError    = "provider_error"
	LinkResultPersistenceError = "persistence_error"
)

// 再調整ワーカーの結果ラベル
const (
	ReconcileResultApplied     = "applied"
	ReconcileResultRetried     = "retried"
	ReconcileResultDropped     = "dropped"
	ReconcileResultObsolete    = "obsolete"
	ReconcileResultClubMissing = "club_missing"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordAccessDecision(app, decision string)
	RecordStripeLink(result string)
	RecordStripeExchangeLatency(duration time.Duration)
	RecordReconcile(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	accessDecisions *prometheus.CounterVec
	stripeLink      *prometheus.CounterVec
	exchangeLatency prometheus.Histogram
	reconcile       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		accessDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubster_access_decisions_total",
			Help: "アクセス制御の判定結果別のリクエスト数",
		}, []string{"app", "decision"}),
		stripeLink: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubster_stripe_link_total",
			Help: "Stripe連携コールバックの結果別の件数",
		}, []string{"result"}),
		exchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clubster_stripe_exchange_latency_seconds",
			Help:    "Stripe認可コード交換のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubster_reconcile_total",
			Help: "連携再調整メッセージの処理結果別の件数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.accessDecisions,
		c.stripeLink,
		c.exchangeLatency,
		c.reconcile,
	)

	return c
}

// RecordAccessDecision はアクセス制御の判定を記録する。
func (c *Collector) RecordAccessDecision(app, decision string) {
	c.accessDecisions.WithLabelValues(app, decision).Inc()
}

// RecordStripeLink はStripe連携コールバックの結果を記録する。
func (c *Collector) RecordStripeLink(result string) {
	c.stripeLink.WithLabelValues(result).Inc()
}

// RecordStripeExchangeLatency はコード交換のレイテンシを記録する。
func (c *Collector) RecordStripeExchangeLatency(duration time.Duration) {
	c.exchangeLatency.Observe(duration.Seconds())
}

// RecordReconcile は再調整メッセージの処理結果を記録する。
func (c *Collector) RecordReconcile(result string) {
	c.reconcile.WithLabelValues(result).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordAccessDecision(string, string)       {}
func (Nop) RecordStripeLink(string)                   {}
func (Nop) RecordStripeExchangeLatency(time.Duration) {}
func (Nop) RecordReconcile(string)                    {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute はworkerプロセスの運用用ハンドラーを返す。
// /metricsに加え、healthが指定されていれば/healthも公開する。
func SetupMetricsRoute(gatherer prometheus.Gatherer, health http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler(gatherer))
	if health != nil {
		mux.Handle("GET /health", health)
	}
	return mux
}
