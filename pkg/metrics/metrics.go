package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 流水线操作计数（create / move / reorder / archive）
	PipelineOperationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_operation_count",
			Help: "Total number of pipeline operations by result",
		},
		[]string{"operation", "result"}, // result: ok, noop, not_found, conflict, invalid_input, forbidden, error
	)

	// 阶段迁移计数（按目标阶段 system key）
	StageTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_transition_count",
			Help: "Total number of recorded stage transitions",
		},
		[]string{"to_stage"},
	)

	// 事务重试计数（serialization failure / deadlock）
	TxRetryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_tx_retry_count",
			Help: "Total number of retried database transactions",
		},
		[]string{"operation"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	// 慢查询耗时（秒）
	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8), // 100ms to ~12.8s
		},
	)

	// Outbox 发布计数
	OutboxPublishCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_publish_count",
			Help: "Total number of outbox events publish attempts",
		},
		[]string{"routing_key", "status"}, // status: sent, retry, failed
	)

	// 限流拒绝计数
	RateLimitedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_count",
			Help: "Total number of requests rejected by the rate limiter",
		},
		[]string{"path"},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementPipelineOperation 增加流水线操作计数
func IncrementPipelineOperation(operation, result string) {
	PipelineOperationCount.WithLabelValues(operation, result).Inc()
}

// IncrementStageTransition 增加阶段迁移计数
func IncrementStageTransition(toStage string) {
	StageTransitionCount.WithLabelValues(toStage).Inc()
}

// IncrementTxRetry 增加事务重试计数
func IncrementTxRetry(operation string) {
	TxRetryCount.WithLabelValues(operation).Inc()
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(duration time.Duration) {
	SlowQueryCount.Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}

// IncrementOutboxPublish 增加 outbox 发布计数
func IncrementOutboxPublish(routingKey, status string) {
	OutboxPublishCount.WithLabelValues(routingKey, status).Inc()
}

// IncrementRateLimited 增加限流拒绝计数
func IncrementRateLimited(path string) {
	RateLimitedCount.WithLabelValues(path).Inc()
}
