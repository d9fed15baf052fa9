package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/gogpu/gg"

	"collaborative-canvas/internal/domain"
)

// Shape 是一种工具对应的几何图形。接口是封闭的，每个工具一个实现。
type Shape interface {
	Tool() domain.Tool
	draw(s *Surface) error
}

// Point 画笔轨迹上的一个点
type Point struct{ X, Y float64 }

// Style 描边样式
type Style struct {
	Color     string
	LineWidth float64
}

type (
	Pen struct {
		Points []Point
		Style
	}
	Rectangle struct {
		X, Y, Width, Height float64
		Style
	}
	Circle struct {
		X, Y, Radius float64
		Style
	}
	Line struct {
		StartX, StartY, EndX, EndY float64
		Style
	}
	Triangle struct {
		X, Y, Width, Height float64
		Style
	}
	Arrow struct {
		StartX, StartY, EndX, EndY float64
		Style
	}
	Emoji struct {
		X, Y  float64
		Glyph string
		Size  float64
	}
)

func (Pen) Tool() domain.Tool       { return domain.ToolPen }
func (Rectangle) Tool() domain.Tool { return domain.ToolRectangle }
func (Circle) Tool() domain.Tool    { return domain.ToolCircle }
func (Line) Tool() domain.Tool      { return domain.ToolLine }
func (Triangle) Tool() domain.Tool  { return domain.ToolTriangle }
func (Arrow) Tool() domain.Tool     { return domain.ToolArrow }
func (Emoji) Tool() domain.Tool     { return domain.ToolEmoji }

// ErrUndrawable 表示事件无法解码为任何图形
var ErrUndrawable = errors.New("render: undrawable event")

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// payload 是容错读取的负载：字段缺失或类型不对时回退默认值
type payload map[string]json.RawMessage

func (p payload) float(name string, def float64) float64 {
	raw, ok := p[name]
	if !ok {
		return def
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return def
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return def
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func (p payload) string(name string) string {
	var s string
	_ = json.Unmarshal(p[name], &s)
	return s
}

func (p payload) style() Style {
	color := p.string("color")
	if !hexColor.MatchString(color) {
		color = DefaultColor
	}
	width := p.float("lineWidth", DefaultLineWidth)
	if width <= 0 {
		width = DefaultLineWidth
	}
	return Style{Color: color, LineWidth: width}
}

func (p payload) points() []Point {
	var raw []payload
	if err := json.Unmarshal(p["points"], &raw); err != nil {
		return nil
	}
	points := make([]Point, 0, len(raw))
	for _, rp := range raw {
		x, y := rp.float("x", math.NaN()), rp.float("y", math.NaN())
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		points = append(points, Point{X: x, Y: y})
	}
	return points
}

// Decode 把事件负载解码为图形。未知工具或负载不是 JSON 对象时返回 ErrUndrawable，
// 其余问题一律按默认值处理。
func Decode(tool domain.Tool, data []byte) (Shape, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil || p == nil {
		return nil, fmt.Errorf("%w: %s payload is not an object", ErrUndrawable, tool)
	}

	switch tool {
	case domain.ToolPen:
		return Pen{Points: p.points(), Style: p.style()}, nil
	case domain.ToolRectangle:
		return Rectangle{X: p.float("x", 0), Y: p.float("y", 0), Width: p.float("width", 0), Height: p.float("height", 0), Style: p.style()}, nil
	case domain.ToolCircle:
		return Circle{X: p.float("x", 0), Y: p.float("y", 0), Radius: p.float("radius", 0), Style: p.style()}, nil
	case domain.ToolLine:
		return Line{StartX: p.float("startX", 0), StartY: p.float("startY", 0), EndX: p.float("endX", 0), EndY: p.float("endY", 0), Style: p.style()}, nil
	case domain.ToolTriangle:
		return Triangle{X: p.float("x", 0), Y: p.float("y", 0), Width: p.float("width", 0), Height: p.float("height", 0), Style: p.style()}, nil
	case domain.ToolArrow:
		return Arrow{StartX: p.float("startX", 0), StartY: p.float("startY", 0), EndX: p.float("endX", 0), EndY: p.float("endY", 0), Style: p.style()}, nil
	case domain.ToolEmoji:
		size := p.float("size", DefaultEmojiSize)
		if size <= 0 {
			size = DefaultEmojiSize
		}
		return Emoji{X: p.float("x", 0), Y: p.float("y", 0), Glyph: p.string("emoji"), Size: size}, nil
	default:
		return nil, fmt.Errorf("%w: unknown tool %q", ErrUndrawable, tool)
	}
}

// stroke 设置样式并描边当前路径
func stroke(s *Surface, st Style) error {
	dc := s.dc
	dc.SetHexColor(st.Color)
	dc.SetLineWidth(st.LineWidth)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)
	return dc.Stroke()
}

func (sh Pen) draw(s *Surface) error {
	if len(sh.Points) < 2 {
		return nil
	}
	s.dc.MoveTo(sh.Points[0].X, sh.Points[0].Y)
	for _, pt := range sh.Points[1:] {
		s.dc.LineTo(pt.X, pt.Y)
	}
	return stroke(s, sh.Style)
}

func (sh Rectangle) draw(s *Surface) error {
	x, w := normalizeSpan(sh.X, sh.Width)
	y, h := normalizeSpan(sh.Y, sh.Height)
	if w == 0 && h == 0 {
		return nil
	}
	s.dc.DrawRectangle(x, y, w, h)
	return stroke(s, sh.Style)
}

// Circle 以 (x+r, y+r) 为圆心，x/y 是外接正方形的左上角
func (sh Circle) draw(s *Surface) error {
	r := math.Abs(sh.Radius)
	if r == 0 {
		return nil
	}
	s.dc.DrawCircle(sh.X+sh.Radius, sh.Y+sh.Radius, r)
	return stroke(s, sh.Style)
}

func (sh Line) draw(s *Surface) error {
	s.dc.MoveTo(sh.StartX, sh.StartY)
	s.dc.LineTo(sh.EndX, sh.EndY)
	return stroke(s, sh.Style)
}

// Triangle 顶点在外接框上边中点，底边与框下边重合
func (sh Triangle) draw(s *Surface) error {
	if sh.Width == 0 && sh.Height == 0 {
		return nil
	}
	s.dc.MoveTo(sh.X+sh.Width/2, sh.Y)
	s.dc.LineTo(sh.X+sh.Width, sh.Y+sh.Height)
	s.dc.LineTo(sh.X, sh.Y+sh.Height)
	s.dc.ClosePath()
	return stroke(s, sh.Style)
}

func (sh Arrow) draw(s *Surface) error {
	dc := s.dc
	dc.MoveTo(sh.StartX, sh.StartY)
	dc.LineTo(sh.EndX, sh.EndY)

	dx, dy := sh.EndX-sh.StartX, sh.EndY-sh.StartY
	if dx != 0 || dy != 0 {
		angle := math.Atan2(dy, dx)
		head := math.Max(10, sh.LineWidth*3)
		for _, side := range []float64{-1, 1} {
			a := angle + side*math.Pi/6
			dc.MoveTo(sh.EndX, sh.EndY)
			dc.LineTo(sh.EndX-head*math.Cos(a), sh.EndY-head*math.Sin(a))
		}
	}
	return stroke(s, sh.Style)
}

func (sh Emoji) draw(s *Surface) error {
	if sh.Glyph == "" {
		return nil
	}
	face := s.face(sh.Size)
	if face == nil {
		return nil
	}
	s.dc.SetFont(face)
	s.dc.SetRGB(0, 0, 0)
	s.dc.DrawStringAnchored(sh.Glyph, sh.X, sh.Y, 0.5, 0.5)
	return nil
}

func normalizeSpan(origin, length float64) (float64, float64) {
	if length < 0 {
		return origin + length, -length
	}
	return origin, length
}
