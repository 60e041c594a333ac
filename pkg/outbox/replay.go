package outbox

import (
	"context"
	"fmt"
)

// ReplayStore ReplayService 需要的 outbox 存储操作
type ReplayStore interface {
	GetFailedEvents(ctx context.Context, limit int) ([]*Event, error)
	ResetEvent(ctx context.Context, eventID int64) error
}

// ReplayService 把失败的事件重新放回 pending，由 Dispatcher 再次发布
type ReplayService struct {
	store ReplayStore
}

// NewReplayService 创建新的 ReplayService
func NewReplayService(store ReplayStore) *ReplayService {
	return &ReplayService{store: store}
}

// ReplayEvent 重放指定的事件
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	return s.store.ResetEvent(ctx, eventID)
}

// ReplayFailedEvents 重放所有失败的事件，返回成功重置的数量
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	events, err := s.store.GetFailedEvents(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed events: %w", err)
	}

	successCount := 0
	for _, event := range events {
		// 单个失败不影响其他事件
		if err := s.store.ResetEvent(ctx, event.ID); err != nil {
			continue
		}
		successCount++
	}

	return successCount, nil
}
