package domain

import "time"

// Participant 记录某个用户在房间中的存在状态，(room_id, user_id) 唯一。
type Participant struct {
	ID       uint      `gorm:"primaryKey"`
	RoomID   uint      `gorm:"not null;uniqueIndex:idx_participant_room_user,priority:1"`
	UserID   string    `gorm:"size:191;not null;uniqueIndex:idx_participant_room_user,priority:2"`
	JoinedAt time.Time `gorm:"not null"`
	LastSeen time.Time `gorm:"not null;index"`
}

// TableName 固定表名
func (Participant) TableName() string { return "room_participants" }

// ActiveSince 判断 last_seen 是否不早于 cutoff (边界包含)
func (p *Participant) ActiveSince(cutoff time.Time) bool {
	return !p.LastSeen.Before(cutoff)
}
