package repository

import (
	"context"
	"time"

	"collaborative-canvas/internal/domain"
)

// ParticipantRepository 定义了房间参与者 (在线状态) 的存储操作。
type ParticipantRepository interface {
	// Upsert 按 (room_id, user_id) 插入或刷新 last_seen，last_seen 只增不减。
	// 返回后 p 反映存储中的行 (ID, JoinedAt, LastSeen)。
	Upsert(ctx context.Context, p *domain.Participant) error

	// Touch 刷新 last_seen，记录不存在返回 ErrNotFound。
	Touch(ctx context.Context, roomID uint, userID string, seen time.Time) error

	// Delete 删除参与者记录，记录不存在不是错误。
	Delete(ctx context.Context, roomID uint, userID string) error

	// ListActiveSince 返回 last_seen >= cutoff 的参与者，按 joined_at 升序。
	ListActiveSince(ctx context.Context, roomID uint, cutoff time.Time) ([]domain.Participant, error)
}
