// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する。
type Collector struct {
	wsConnections    prometheus.Gauge
	wsAuthSuccess    prometheus.Counter
	wsAuthFailure    prometheus.Counter
	wsFrames         *prometheus.CounterVec
	authOutcome      *prometheus.CounterVec
	chatMessages     prometheus.Counter
	analysisLatency  prometheus.Histogram
	analysisFailures prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hanasu_ws_connections",
			Help: "現在のWebSocket接続数",
		}),
		wsAuthSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hanasu_ws_auth_success_total",
			Help: "WebSocket認証成功の合計数",
		}),
		wsAuthFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hanasu_ws_auth_failure_total",
			Help: "WebSocket認証失敗の合計数",
		}),
		wsFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hanasu_ws_frames_total",
			Help: "メッセージ種別ごとの受信フレーム数",
		}, []string{"type"}),
		authOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hanasu_auth_gate_total",
			Help: "認証ゲートの判定結果ごとの数",
		}, []string{"outcome"}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hanasu_chat_messages_total",
			Help: "処理したチャットメッセージの合計数",
		}),
		analysisLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hanasu_emotion_analysis_latency_seconds",
			Help:    "感情分析APIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		analysisFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hanasu_emotion_analysis_failures_total",
			Help: "感情分析API失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.wsConnections,
		c.wsAuthSuccess,
		c.wsAuthFailure,
		c.wsFrames,
		c.authOutcome,
		c.chatMessages,
		c.analysisLatency,
		c.analysisFailures,
	)

	return c
}

// WSConnectionOpened はWebSocket接続の確立を記録する。
func (c *Collector) WSConnectionOpened() {
	c.wsConnections.Inc()
}

// WSConnectionClosed はWebSocket接続の終了を記録する。
func (c *Collector) WSConnectionClosed() {
	c.wsConnections.Dec()
}

// RecordWSAuth はWebSocket認証の結果を記録する。
func (c *Collector) RecordWSAuth(success bool) {
	if success {
		c.wsAuthSuccess.Inc()
	} else {
		c.wsAuthFailure.Inc()
	}
}

// RecordWSFrame は受信フレームをメッセージ種別ごとに記録する。
func (c *Collector) RecordWSFrame(messageType string) {
	c.wsFrames.WithLabelValues(messageType).Inc()
}

// RecordAuthGate は認証ゲートの判定結果を記録する。
// outcomeは admitted / rejected / refreshed のいずれか。
func (c *Collector) RecordAuthGate(outcome string) {
	c.authOutcome.WithLabelValues(outcome).Inc()
}

// RecordChatMessage はチャットメッセージの処理を記録する。
func (c *Collector) RecordChatMessage() {
	c.chatMessages.Inc()
}

// RecordAnalysisLatency は感情分析APIのレイテンシを記録する。
func (c *Collector) RecordAnalysisLatency(duration time.Duration) {
	c.analysisLatency.Observe(duration.Seconds())
}

// RecordAnalysisFailure は感情分析APIの失敗を記録する。
func (c *Collector) RecordAnalysisFailure() {
	c.analysisFailures.Inc()
}

// Handler は/metricsエンドポイントのHTTPハンドラーを返す。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
