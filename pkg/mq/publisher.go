package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"hirepipe/pkg/trace"
)

// Publisher 发布事件到 RabbitMQ topic exchange
type Publisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string

	// amqp091.Channel 不是并发安全的
	mu sync.Mutex
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = ExchangeName
	}

	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
	}, nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// IsConnected checks if the publisher connection is still alive
func (p *Publisher) IsConnected() bool {
	if p.conn == nil || p.channel == nil {
		return false
	}
	return !p.conn.IsClosed()
}

// PublishEvent publishes an already encoded JSON body with the given routing key.
// key 作为 MessageId，方便消费端去重
func (p *Publisher) PublishEvent(ctx context.Context, routingKey, key string, body []byte) error {
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		MessageId:    key,
		Timestamp:    time.Now().UTC(),
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		msg.Headers = amqp091.Table{"trace_id": traceID}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
}
