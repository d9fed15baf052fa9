package domain

import "time"

// 变更提示类型
const (
	NoticeAppend = "append"
	NoticeClear  = "clear"
)

// ChangeNotice 是日志变化后推送给订阅者的提示，客户端收到后立即轮询一次。
type ChangeNotice struct {
	Type      string    `json:"type"`
	RoomID    uint      `json:"roomId"`
	EventID   uint      `json:"eventId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
