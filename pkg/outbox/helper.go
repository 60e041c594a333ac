package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NewPendingEvent 校验并序列化事件，返回待插入的 pending 事件
func NewPendingEvent(aggregateType string, aggregateID *int64, routingKey string, payload any) (*Event, error) {
	if aggregateType == "" || routingKey == "" {
		return nil, errors.New("outbox event needs an aggregate type and a routing key")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", routingKey, err)
	}
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	}, nil
}

// InsertEventInTx 在业务事务中写入 outbox，事务提交后由 Dispatcher 发布
func InsertEventInTx(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID *int64, routingKey string, payload any) error {
	event, err := NewPendingEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return err
	}
	return InsertEvent(ctx, tx, event)
}
