package repository

import (
	"context"

	"collaborative-canvas/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间，不存在返回 ErrNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByCode 根据房间码查找房间，不存在返回 ErrNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Create 插入新房间。房间码冲突时必须返回 ErrDuplicateEntry，
	// 由唯一索引保证，调用方据此重新生成房间码。
	Create(ctx context.Context, room *domain.Room) error

	// Save 更新已有房间的设置列。
	Save(ctx context.Context, room *domain.Room) error

	// IsCodeExists 检查房间码是否已被占用。
	IsCodeExists(ctx context.Context, code string) (bool, error)
}
