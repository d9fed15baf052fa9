package domain

import "time"

// Room 表示一个共享画布房间，通过 6 位房间码加入。
type Room struct {
	ID           uint       `gorm:"primaryKey"`
	Code         string     `gorm:"uniqueIndex;size:6;not null"`           // 房间码 [A-Z0-9]{6}
	CreatorID    string     `gorm:"column:created_by;size:191;not null;index"` // 创建者的不透明用户 ID
	IsPublic     bool       `gorm:"not null"`
	AllowDrawing bool       `gorm:"not null"`
	ClearedAt    *time.Time // 最近一次清空画布的时间，从未清空为 nil
	CreatedAt    time.Time  `gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime"`
}

// TableName 固定表名
func (Room) TableName() string { return "rooms" }

// IsCreator 判断 userID 是否为房间创建者
func (r *Room) IsCreator(userID string) bool {
	return r != nil && userID != "" && r.CreatorID == userID
}

// RoomSettings 描述一次设置变更，nil 字段保持不变。
type RoomSettings struct {
	IsPublic     *bool
	AllowDrawing *bool
}

// ApplyTo 把非 nil 字段写入 room，返回是否有变化
func (s RoomSettings) ApplyTo(room *Room) bool {
	changed := false
	if s.IsPublic != nil && room.IsPublic != *s.IsPublic {
		room.IsPublic = *s.IsPublic
		changed = true
	}
	if s.AllowDrawing != nil && room.AllowDrawing != *s.AllowDrawing {
		room.AllowDrawing = *s.AllowDrawing
		changed = true
	}
	return changed
}
