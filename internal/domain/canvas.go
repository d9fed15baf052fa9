package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Tool 是画布事件的工具类型
type Tool string

const (
	ToolPen       Tool = "pen"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
	ToolLine      Tool = "line"
	ToolTriangle  Tool = "triangle"
	ToolArrow     Tool = "arrow"
	ToolEmoji     Tool = "emoji"
)

// Tools 列出所有已知工具，顺序无意义
var Tools = []Tool{ToolPen, ToolRectangle, ToolCircle, ToolLine, ToolTriangle, ToolArrow, ToolEmoji}

// Valid 是否为已知工具
func (t Tool) Valid() bool {
	for _, known := range Tools {
		if t == known {
			return true
		}
	}
	return false
}

// CanvasEvent 是画布事件日志中的一条记录，创建后不可变。
// 同一房间内按 (Timestamp, ID) 全序重放。
type CanvasEvent struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    uint      `gorm:"not null;index:idx_canvas_room_ts,priority:1"`
	AuthorID  string    `gorm:"column:user_id;size:191;not null"`
	Tool      Tool      `gorm:"size:20;not null"`
	Data      string    `gorm:"type:text;not null"` // 工具负载，原样保存的 JSON 对象
	Timestamp time.Time `gorm:"not null;index:idx_canvas_room_ts,priority:2"`
}

// TableName 与既有部署保持一致
func (CanvasEvent) TableName() string { return "canvas_data" }

// Before 按 (Timestamp, ID) 比较
func (e *CanvasEvent) Before(other *CanvasEvent) bool {
	if e.Timestamp.Equal(other.Timestamp) {
		return e.ID < other.ID
	}
	return e.Timestamp.Before(other.Timestamp)
}

// ErrInvalidPayload 表示工具负载结构不合法
var ErrInvalidPayload = errors.New("invalid tool payload")

// 各工具必须存在的数值字段
var requiredNumbers = map[Tool][]string{
	ToolRectangle: {"x", "y", "width", "height"},
	ToolCircle:    {"x", "y", "radius"},
	ToolLine:      {"startX", "startY", "endX", "endY"},
	ToolTriangle:  {"x", "y", "width", "height"},
	ToolArrow:     {"startX", "startY", "endX", "endY"},
	ToolEmoji:     {"x", "y"},
}

// ValidatePayload 在写入前严格校验负载：必须是 JSON 对象，
// 必填字段存在且类型正确，可选字段出现时类型也必须正确。
// 重放时的容错解码在 render 包里，两者故意不共用。
func ValidatePayload(tool Tool, data json.RawMessage) error {
	if !tool.Valid() {
		return fmt.Errorf("%w: unknown tool %q", ErrInvalidPayload, tool)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return fmt.Errorf("%w: payload must be a JSON object", ErrInvalidPayload)
	}

	if raw, ok := fields["color"]; ok && !isNull(raw) {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return fmt.Errorf("%w: color must be a string", ErrInvalidPayload)
		}
	}
	for _, name := range []string{"lineWidth", "size"} {
		if raw, ok := fields[name]; ok && !isNull(raw) {
			if _, err := number(raw); err != nil {
				return fmt.Errorf("%w: %s must be a number", ErrInvalidPayload, name)
			}
		}
	}

	for _, name := range requiredNumbers[tool] {
		raw, ok := fields[name]
		if !ok {
			return fmt.Errorf("%w: %s requires field %s", ErrInvalidPayload, tool, name)
		}
		if _, err := number(raw); err != nil {
			return fmt.Errorf("%w: %s must be a number", ErrInvalidPayload, name)
		}
	}

	switch tool {
	case ToolPen:
		raw, ok := fields["points"]
		if !ok {
			return fmt.Errorf("%w: pen requires field points", ErrInvalidPayload)
		}
		var points []map[string]json.RawMessage
		if err := json.Unmarshal(raw, &points); err != nil || points == nil {
			return fmt.Errorf("%w: points must be an array of {x,y}", ErrInvalidPayload)
		}
		for i, p := range points {
			for _, axis := range []string{"x", "y"} {
				if _, err := number(p[axis]); err != nil {
					return fmt.Errorf("%w: points[%d].%s must be a number", ErrInvalidPayload, i, axis)
				}
			}
		}
	case ToolEmoji:
		var glyph string
		if err := json.Unmarshal(fields["emoji"], &glyph); err != nil || glyph == "" {
			return fmt.Errorf("%w: emoji requires a non-empty glyph string", ErrInvalidPayload)
		}
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func number(raw json.RawMessage) (float64, error) {
	if isNull(raw) {
		return 0, errors.New("missing")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}
