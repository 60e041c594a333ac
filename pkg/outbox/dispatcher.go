package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"hirepipe/pkg/metrics"
	"hirepipe/pkg/trace"
)

// EventStore Dispatcher 需要的 outbox 存储操作
type EventStore interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int) (string, error)
}

// Publisher 消息发布端（RabbitMQ 或 Kafka）
type Publisher interface {
	PublishEvent(ctx context.Context, routingKey, key string, body []byte) error
}

// Dispatcher 负责从 outbox 中读取事件并发布到 MQ
type Dispatcher struct {
	store      EventStore
	publisher  Publisher
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

// NewDispatcher 创建新的 Dispatcher
func NewDispatcher(store EventStore, publisher Publisher, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,               // 默认最大重试5次
		interval:   1 * time.Second, // 默认每秒扫描一次
		batchSize:  100,             // 默认每次处理100个事件
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-publisher",
		MaxRequests: 3,                // 半开状态下最多允许3个请求
		Timeout:     30 * time.Second, // 打开状态持续30秒
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return d
}

// WithMaxRetries 设置最大重试次数
func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	if maxRetries > 0 {
		d.maxRetries = maxRetries
	}
	return d
}

// WithInterval 设置扫描间隔
func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// WithBatchSize 设置批次大小
func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

// Start 启动 Dispatcher，ctx 取消后返回
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return nil
		case <-ticker.C:
			d.processPendingEvents(ctx)
		}
	}
}

// processPendingEvents 处理一批待发送的事件
func (d *Dispatcher) processPendingEvents(ctx context.Context) int {
	events, err := d.store.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return 0
	}

	sent := 0
	// 同一聚合的事件按 id 顺序发布：某个事件失败后，本批次中该聚合后续的事件留到下一轮
	held := make(map[string]bool)
	for _, event := range events {
		if held[event.Key()] {
			d.logger.Debug("Event held behind failed event of same aggregate",
				zap.Int64("event_id", event.ID),
				zap.String("key", event.Key()),
			)
			continue
		}
		if err := d.publishEvent(ctx, event); err != nil {
			held[event.Key()] = true
			d.logger.Error("Failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)

			status, markErr := d.store.MarkAsFailed(ctx, event.ID, d.maxRetries)
			if markErr != nil {
				d.logger.Error("Failed to mark event as failed",
					zap.Int64("event_id", event.ID),
					zap.Error(markErr),
				)
				continue
			}
			if status == StatusFailed {
				metrics.IncrementOutboxPublish(event.RoutingKey, StatusFailed)
			} else {
				metrics.IncrementOutboxPublish(event.RoutingKey, "retry")
			}
			continue
		}

		if err := d.store.MarkAsSent(ctx, event.ID); err != nil {
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
		metrics.IncrementOutboxPublish(event.RoutingKey, StatusSent)
		d.logger.Debug("Event published successfully",
			zap.Int64("event_id", event.ID),
			zap.String("routing_key", event.RoutingKey),
		)
	}
	return sent
}

// publishEvent 经过熔断器发布单个事件
func (d *Dispatcher) publishEvent(ctx context.Context, event *Event) error {
	ctx = extractTraceIDFromPayload(ctx, event.Payload)

	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.publisher.PublishEvent(ctx, event.RoutingKey, event.Key(), event.Payload)
	})
	if err != nil {
		return fmt.Errorf("failed to publish to MQ: %w", err)
	}
	return nil
}

// extractTraceIDFromPayload 从 payload 中提取 trace_id（如果存在）
func extractTraceIDFromPayload(ctx context.Context, payload json.RawMessage) context.Context {
	var envelope struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ctx
	}
	if envelope.TraceID != "" {
		ctx = trace.WithContext(ctx, envelope.TraceID)
	}
	return ctx
}
