package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型
const (
	TypePreviewRender = "preview:render"
)

// 队列
const (
	QueueDefault = "default"
	QueueLow     = "low"
)

// PreviewRenderPayload 预览渲染任务的数据
type PreviewRenderPayload struct {
	RoomID      uint      `json:"room_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewPreviewRenderTask 创建预览渲染任务
func NewPreviewRenderTask(roomID uint, requestedAt time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(PreviewRenderPayload{RoomID: roomID, RequestedAt: requestedAt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePreviewRender, payload), nil
}

// ParsePreviewRenderPayload 解析任务数据
func ParsePreviewRenderPayload(t *asynq.Task) (PreviewRenderPayload, error) {
	var p PreviewRenderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal %s payload: %w", t.Type(), err)
	}
	if p.RoomID == 0 {
		return p, fmt.Errorf("%s payload has no room id", t.Type())
	}
	return p, nil
}
