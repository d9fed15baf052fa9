package render

import "collaborative-canvas/internal/domain"

// Draw 把单个图形画到表面上
func Draw(s *Surface, shape Shape) error {
	s.dc.Push()
	defer s.dc.Pop()
	s.dc.ClearPath()
	err := shape.draw(s)
	s.dc.ClearPath()
	return err
}

// DrawEvent 解码并绘制一个事件
func DrawEvent(s *Surface, event *domain.CanvasEvent) error {
	shape, err := Decode(event.Tool, []byte(event.Data))
	if err != nil {
		return err
	}
	return Draw(s, shape)
}

// Render 按给定顺序重放事件，返回成功绘制的数量。
// 单个事件无法绘制时跳过，不影响其余事件。
func Render(s *Surface, events []domain.CanvasEvent) int {
	drawn := 0
	for i := range events {
		if err := DrawEvent(s, &events[i]); err == nil {
			drawn++
		}
	}
	return drawn
}
