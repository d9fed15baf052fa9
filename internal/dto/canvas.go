// Package dto 定义 HTTP/JSON 线上格式，服务端 handler 和 syncclient 共用。
package dto

import (
	"encoding/json"
	"time"

	"collaborative-canvas/internal/domain"
)

// ClearedAtHeader 携带房间最近一次清空的时间 (RFC3339Nano)，客户端据此判断是否需要重置
const ClearedAtHeader = "X-Canvas-Cleared-At"

// CreateRoomRequest 创建房间请求体。缺省的字段由 handler 视为 true。
type CreateRoomRequest struct {
	IsPublic     *bool `json:"isPublic"`
	AllowDrawing *bool `json:"allowDrawing"`
}

// UpdateSettingsRequest 修改房间设置请求体，nil 字段不变
type UpdateSettingsRequest struct {
	IsPublic     *bool `json:"isPublic"`
	AllowDrawing *bool `json:"allowDrawing"`
}

// Settings 转换为领域对象
func (r UpdateSettingsRequest) Settings() domain.RoomSettings {
	return domain.RoomSettings{IsPublic: r.IsPublic, AllowDrawing: r.AllowDrawing}
}

// RoomDTO 房间
type RoomDTO struct {
	ID           uint       `json:"id"`
	Code         string     `json:"code"`
	CreatedBy    string     `json:"createdBy"`
	IsPublic     bool       `json:"isPublic"`
	AllowDrawing bool       `json:"allowDrawing"`
	ClearedAt    *time.Time `json:"clearedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

func NewRoomDTO(r *domain.Room) RoomDTO {
	return RoomDTO{
		ID:           r.ID,
		Code:         r.Code,
		CreatedBy:    r.CreatorID,
		IsPublic:     r.IsPublic,
		AllowDrawing: r.AllowDrawing,
		ClearedAt:    r.ClearedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ParticipantDTO 参与者
type ParticipantDTO struct {
	RoomID   uint      `json:"roomId"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
	LastSeen time.Time `json:"lastSeen"`
}

func NewParticipantDTO(p *domain.Participant) ParticipantDTO {
	return ParticipantDTO{RoomID: p.RoomID, UserID: p.UserID, JoinedAt: p.JoinedAt, LastSeen: p.LastSeen}
}

func NewParticipantDTOs(ps []domain.Participant) []ParticipantDTO {
	out := make([]ParticipantDTO, 0, len(ps))
	for i := range ps {
		out = append(out, NewParticipantDTO(&ps[i]))
	}
	return out
}

// AppendEventRequest 追加画布事件的请求体
type AppendEventRequest struct {
	Tool domain.Tool     `json:"tool" binding:"required"`
	Data json.RawMessage `json:"data" binding:"required"`
}

// CanvasEventDTO 画布事件。data 原样输出为 JSON 对象。
type CanvasEventDTO struct {
	ID        uint            `json:"id"`
	RoomID    uint            `json:"roomId"`
	UserID    string          `json:"userId"`
	Tool      domain.Tool     `json:"tool"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewCanvasEventDTO(e *domain.CanvasEvent) CanvasEventDTO {
	return CanvasEventDTO{
		ID:        e.ID,
		RoomID:    e.RoomID,
		UserID:    e.AuthorID,
		Tool:      e.Tool,
		Data:      json.RawMessage(e.Data),
		Timestamp: e.Timestamp,
	}
}

func NewCanvasEventDTOs(events []domain.CanvasEvent) []CanvasEventDTO {
	out := make([]CanvasEventDTO, 0, len(events))
	for i := range events {
		out = append(out, NewCanvasEventDTO(&events[i]))
	}
	return out
}

// Event 转回领域对象，供客户端重放
func (e CanvasEventDTO) Event() domain.CanvasEvent {
	return domain.CanvasEvent{
		ID:        e.ID,
		RoomID:    e.RoomID,
		AuthorID:  e.UserID,
		Tool:      e.Tool,
		Data:      string(e.Data),
		Timestamp: e.Timestamp,
	}
}

// ErrorDTO 错误响应
type ErrorDTO struct {
	Error string `json:"error"`
}
