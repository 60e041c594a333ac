package mq

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"hirepipe/pkg/trace"
)

// KafkaPublisher 把事件写入单个 Kafka topic，routing key 放在 header 中
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher 创建 Kafka 生产者
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // 同一个 key（application）落在同一分区，保证顺序
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll, // 等待所有副本确认
		MaxAttempts:            3,
		WriteBackoffMin:        100 * time.Millisecond,
		WriteBackoffMax:        time.Second,
	}
	return &KafkaPublisher{writer: writer}, nil
}

// PublishEvent 发送单条消息，key 决定分区
func (kp *KafkaPublisher) PublishEvent(ctx context.Context, routingKey, key string, body []byte) error {
	headers := []kafka.Header{{Key: "routing_key", Value: []byte(routingKey)}}
	if traceID := trace.FromContext(ctx); traceID != "" {
		headers = append(headers, kafka.Header{Key: "trace_id", Value: []byte(traceID)})
	}

	return kp.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(key),
		Value:   body,
		Headers: headers,
	})
}

// Close 关闭 writer
func (kp *KafkaPublisher) Close() error {
	return kp.writer.Close()
}
