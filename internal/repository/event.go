package repository

import (
	"context"
	"time"

	"collaborative-canvas/internal/domain"
)

// EventRepository 定义了画布事件日志的存储操作。日志只追加，清空是唯一的删除方式。
type EventRepository interface {
	// Append 追加一条事件，成功后 event.ID 被填充。
	Append(ctx context.Context, event *domain.CanvasEvent) error

	// FetchSince 返回 timestamp 严格大于 since 的事件；since 为 nil 时返回全部。
	// 结果总是按 (timestamp, id) 升序。
	FetchSince(ctx context.Context, roomID uint, since *time.Time) ([]domain.CanvasEvent, error)

	// ClearRoom 在一个事务里删除房间的全部事件并把 rooms.cleared_at 设为 clearedAt。
	// 房间不存在返回 ErrNotFound。
	ClearRoom(ctx context.Context, roomID uint, clearedAt time.Time) error
}
