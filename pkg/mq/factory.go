package mq

import (
	"context"
	"fmt"

	"hirepipe/pkg/config"
)

// EventPublisher outbox Dispatcher 使用的发布端，RabbitMQ 和 Kafka 都实现它
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey, key string, body []byte) error
	Close() error
}

// NewEventPublisher 按 mq.driver 创建发布端（amqp 或 kafka）
func NewEventPublisher(cfg config.MQConfig) (EventPublisher, error) {
	switch cfg.Driver {
	case "", "amqp":
		return NewPublisher(cfg.URL, cfg.Exchange)
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	default:
		return nil, fmt.Errorf("unknown mq driver %q", cfg.Driver)
	}
}
