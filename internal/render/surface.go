// Package render 把画布事件按顺序重放到光栅表面上，并提供本地撤销/重做历史。
package render

import (
	"image"
	"io"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
)

// 默认尺寸与样式，与 Web 客户端保持一致
const (
	DefaultWidth     = 1200
	DefaultHeight    = 800
	DefaultColor     = "#6366F1"
	DefaultLineWidth = 3.0
	DefaultEmojiSize = 24.0
)

// Background 画布底色
var Background = gg.RGB(1, 1, 1)

// Surface 是一块可重放事件的光栅画布。非并发安全。
type Surface struct {
	dc    *gg.Context
	font  *text.FontSource
	faces map[float64]text.Face
}

// SurfaceOption 配置 Surface
type SurfaceOption func(*Surface)

// WithEmojiFont 设置绘制 emoji 用的字体；未设置时 emoji 事件不产生像素。
func WithEmojiFont(font *text.FontSource) SurfaceOption {
	return func(s *Surface) { s.font = font }
}

// NewSurface 创建底色为白色的画布
func NewSurface(width, height int, opts ...SurfaceOption) *Surface {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	s := &Surface{
		dc:    gg.NewContext(width, height),
		faces: make(map[float64]text.Face),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Clear()
	return s
}

// LoadEmojiFont 从文件加载字体，path 为空返回 nil
func LoadEmojiFont(path string) (*text.FontSource, error) {
	if path == "" {
		return nil, nil
	}
	return text.NewFontSourceFromFile(path)
}

func (s *Surface) Width() int  { return s.dc.Width() }
func (s *Surface) Height() int { return s.dc.Height() }

// Clear 恢复为空白画布
func (s *Surface) Clear() {
	s.dc.ClearPath()
	s.dc.ClearWithColor(Background)
}

// Snapshot 是画布像素的完整拷贝
type Snapshot []byte

// Snapshot 拷贝当前像素
func (s *Surface) Snapshot() Snapshot {
	data := s.dc.ResizeTarget().Data()
	snap := make(Snapshot, len(data))
	copy(snap, data)
	return snap
}

// Restore 用快照覆盖当前像素，尺寸不一致时忽略
func (s *Surface) Restore(snap Snapshot) {
	data := s.dc.ResizeTarget().Data()
	if len(snap) != len(data) {
		return
	}
	copy(data, snap)
}

// Image 返回当前画面的副本
func (s *Surface) Image() image.Image {
	return s.dc.Image()
}

// EncodePNG 以 PNG 格式写出当前画面
func (s *Surface) EncodePNG(w io.Writer) error {
	return s.dc.EncodePNG(w)
}

// Close 释放底层上下文
func (s *Surface) Close() error {
	return s.dc.Close()
}

func (s *Surface) face(size float64) text.Face {
	if s.font == nil {
		return nil
	}
	if f, ok := s.faces[size]; ok {
		return f
	}
	f := s.font.Face(size)
	s.faces[size] = f
	return f
}
