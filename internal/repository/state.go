package repository

import (
	"context"

	"collaborative-canvas/internal/domain"
)

// ChangeNotifier 把 "房间日志已变化" 的提示广播出去，通常由 Redis Pub/Sub 实现。
// 提示只是加速轮询的线索，丢失不影响正确性。
type ChangeNotifier interface {
	Publish(ctx context.Context, notice domain.ChangeNotice) error
}

// PreviewStore 保存服务端渲染的房间预览图 (PNG)。
type PreviewStore interface {
	// PutPreview 覆盖房间的预览图。
	PutPreview(ctx context.Context, roomID uint, png []byte) error
	// GetPreview 读取预览图，尚未生成返回 ErrPreviewNotFound。
	GetPreview(ctx context.Context, roomID uint) ([]byte, error)
}
