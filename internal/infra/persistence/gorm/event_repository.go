package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// GormEventRepository 是 EventRepository 接口的 GORM 实现
type GormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository 创建 GormEventRepository 实例
func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	if db == nil {
		panic("database connection cannot be nil for GormEventRepository")
	}
	return &GormEventRepository{db: db}
}

// Append 追加一条画布事件
func (r *GormEventRepository) Append(ctx context.Context, event *domain.CanvasEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("gorm: append event (room: %d, tool: %s): %w", event.RoomID, event.Tool, err)
	}
	return nil
}

// FetchSince 按 (timestamp, id) 升序返回事件，since 非 nil 时严格大于 since
func (r *GormEventRepository) FetchSince(ctx context.Context, roomID uint, since *time.Time) ([]domain.CanvasEvent, error) {
	events := make([]domain.CanvasEvent, 0)
	query := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if since != nil {
		query = query.Where("timestamp > ?", *since)
	}
	err := query.Order("timestamp ASC").Order("id ASC").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: fetch events for room %d: %w", roomID, err)
	}
	return events, nil
}

// ClearRoom 在同一事务内标记房间清空时间并删除全部事件
func (r *GormEventRepository) ClearRoom(ctx context.Context, roomID uint, clearedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 先更新房间，顺便确认房间存在
		result := tx.Model(&domain.Room{}).Where("id = ?", roomID).
			Updates(map[string]interface{}{"cleared_at": clearedAt, "updated_at": clearedAt})
		if result.Error != nil {
			return fmt.Errorf("gorm: stamp cleared_at for room %d: %w", roomID, result.Error)
		}
		if result.RowsAffected == 0 {
			return repository.ErrRoomNotFound
		}

		// 2. 删除事件
		if err := tx.Where("room_id = ?", roomID).Delete(&domain.CanvasEvent{}).Error; err != nil {
			return fmt.Errorf("gorm: delete events for room %d: %w", roomID, err)
		}
		return nil
	})
}
