package gormpersistence

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// GormParticipantRepository 是 ParticipantRepository 接口的 GORM 实现
type GormParticipantRepository struct {
	db *gorm.DB
}

// NewGormParticipantRepository 创建 GormParticipantRepository 实例
func NewGormParticipantRepository(db *gorm.DB) *GormParticipantRepository {
	if db == nil {
		panic("database connection cannot be nil for GormParticipantRepository")
	}
	return &GormParticipantRepository{db: db}
}

// Upsert 依赖 (room_id, user_id) 唯一索引，冲突时 last_seen 取较大值
func (r *GormParticipantRepository) Upsert(ctx context.Context, p *domain.Participant) error {
	if p.JoinedAt.IsZero() {
		p.JoinedAt = p.LastSeen
	}
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen": gorm.Expr("GREATEST(room_participants.last_seen, ?)", p.LastSeen),
		}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert participant (room: %d, user: %s): %w", p.RoomID, p.UserID, err)
	}

	// 冲突更新时返回的 ID 不可靠，重新读取存储中的行
	var stored domain.Participant
	err = db.Where("room_id = ? AND user_id = ?", p.RoomID, p.UserID).First(&stored).Error
	if err != nil {
		return fmt.Errorf("gorm: reload participant (room: %d, user: %s): %w", p.RoomID, p.UserID, err)
	}
	*p = stored
	return nil
}

// Touch 刷新 last_seen。MySQL 连接需开启 clientFoundRows，否则值未变时 RowsAffected 为 0。
func (r *GormParticipantRepository) Touch(ctx context.Context, roomID uint, userID string, seen time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.Participant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("last_seen", gorm.Expr("GREATEST(last_seen, ?)", seen))
	if result.Error != nil {
		return fmt.Errorf("gorm: touch participant (room: %d, user: %s): %w", roomID, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrParticipantNotFound
	}
	return nil
}

// Delete 删除参与者
func (r *GormParticipantRepository) Delete(ctx context.Context, roomID uint, userID string) error {
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.Participant{}).Error
	if err != nil {
		return fmt.Errorf("gorm: delete participant (room: %d, user: %s): %w", roomID, userID, err)
	}
	return nil
}

// ListActiveSince 读时过滤，不做任何清理
func (r *GormParticipantRepository) ListActiveSince(ctx context.Context, roomID uint, cutoff time.Time) ([]domain.Participant, error) {
	participants := make([]domain.Participant, 0)
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND last_seen >= ?", roomID, cutoff).
		Order("joined_at ASC").Order("id ASC").
		Find(&participants).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list active participants for room %d: %w", roomID, err)
	}
	return participants, nil
}
