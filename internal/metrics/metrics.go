// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 上流クライアントとツールサービスの両方のMetricsRecorderを満たす。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	governorDenials  prometheus.Counter
	toolInvocations  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrimcp_upstream_requests_total",
			Help: "上流API呼び出しの合計数（操作・ステータスコード別）",
		}, []string{"operation", "status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nutrimcp_upstream_latency_seconds",
			Help:    "上流API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrimcp_upstream_retries_total",
			Help: "上流API呼び出しのリトライ合計数",
		}, []string{"operation"}),
		governorDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutrimcp_governor_denials_total",
			Help: "レートガバナーによる拒否の合計数",
		}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrimcp_tool_invocations_total",
			Help: "ツール呼び出しの合計数（ツール・結果別）",
		}, []string{"tool", "outcome"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.retries,
		c.governorDenials,
		c.toolInvocations,
	)

	return c
}

// RecordUpstreamRequest は上流API呼び出しの結果を記録する。
func (c *Collector) RecordUpstreamRequest(operation string, statusCode int) {
	c.upstreamRequests.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency は上流API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(operation string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRetry は上流API呼び出しのリトライを記録する。
func (c *Collector) RecordRetry(operation string) {
	c.retries.WithLabelValues(operation).Inc()
}

// RecordGovernorDenial はレートガバナーによる拒否を記録する。
func (c *Collector) RecordGovernorDenial() {
	c.governorDenials.Inc()
}

// RecordToolInvocation はツール呼び出しの結果を記録する。
func (c *Collector) RecordToolInvocation(tool string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.toolInvocations.WithLabelValues(tool, outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
