package render

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/domain"
)

func event(id uint, tool domain.Tool, data string) domain.CanvasEvent {
	return domain.CanvasEvent{
		ID:        id,
		RoomID:    1,
		AuthorID:  "alice",
		Tool:      tool,
		Data:      data,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, int(id)*1000, time.UTC),
	}
}

func isWhite(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r>>8 >= 250 && g>>8 >= 250 && b>>8 >= 250
}

func isBlueish(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return b > r && b > g && !isWhite(c)
}

func TestNewSurface_StartsWhite(t *testing.T) {
	s := NewSurface(40, 30)
	defer s.Close()

	assert.Equal(t, 40, s.Width())
	assert.Equal(t, 30, s.Height())
	img := s.Image()
	assert.True(t, isWhite(img.At(0, 0)))
	assert.True(t, isWhite(img.At(39, 29)))
}

func TestNewSurface_DefaultSize(t *testing.T) {
	s := NewSurface(0, -1)
	defer s.Close()
	assert.Equal(t, DefaultWidth, s.Width())
	assert.Equal(t, DefaultHeight, s.Height())
}

func TestRender_RectangleStrokeOnly(t *testing.T) {
	s := NewSurface(100, 100)
	defer s.Close()

	n := Render(s, []domain.CanvasEvent{
		event(1, domain.ToolRectangle, `{"x":10,"y":10,"width":80,"height":80,"color":"#0000FF","lineWidth":4}`),
	})
	require.Equal(t, 1, n)

	img := s.Image()
	assert.True(t, isBlueish(img.At(10, 50)), "left edge should be stroked")
	assert.True(t, isBlueish(img.At(50, 90)), "bottom edge should be stroked")
	assert.True(t, isWhite(img.At(50, 50)), "interior must stay unfilled")
}

func TestRender_NegativeRectangleIsNormalized(t *testing.T) {
	a := NewSurface(100, 100)
	b := NewSurface(100, 100)
	defer a.Close()
	defer b.Close()

	Render(a, []domain.CanvasEvent{event(1, domain.ToolRectangle, `{"x":90,"y":90,"width":-80,"height":-80}`)})
	Render(b, []domain.CanvasEvent{event(1, domain.ToolRectangle, `{"x":10,"y":10,"width":80,"height":80}`)})

	assert.Equal(t, b.Snapshot(), a.Snapshot())
}

func TestRender_DefaultsApplied(t *testing.T) {
	s := NewSurface(100, 100)
	defer s.Close()

	// color 非法、lineWidth 缺失时使用默认样式
	Render(s, []domain.CanvasEvent{event(1, domain.ToolLine, `{"startX":0,"startY":50,"endX":100,"endY":50,"color":"not-a-color"}`)})
	assert.True(t, isBlueish(s.Image().At(50, 50)))
}

func TestRender_MalformedEventSkipped(t *testing.T) {
	good := []domain.CanvasEvent{
		event(1, domain.ToolLine, `{"startX":0,"startY":20,"endX":100,"endY":20}`),
		event(3, domain.ToolCircle, `{"x":40,"y":40,"radius":10}`),
	}
	withBad := []domain.CanvasEvent{
		good[0],
		event(2, domain.ToolRectangle, `not json at all`),
		event(4, domain.Tool("laser"), `{"x":1}`),
		good[1],
	}

	clean := NewSurface(100, 100)
	dirty := NewSurface(100, 100)
	defer clean.Close()
	defer dirty.Close()

	assert.Equal(t, 2, Render(clean, good))
	assert.Equal(t, 2, Render(dirty, withBad))
	assert.Equal(t, clean.Snapshot(), dirty.Snapshot())
}

func TestRender_DeterministicAcrossBatching(t *testing.T) {
	events := []domain.CanvasEvent{
		event(1, domain.ToolPen, `{"points":[{"x":5,"y":5},{"x":30,"y":40},{"x":60,"y":10}],"color":"#ff0000","lineWidth":2}`),
		event(2, domain.ToolTriangle, `{"x":10,"y":10,"width":50,"height":40}`),
		event(3, domain.ToolArrow, `{"startX":0,"startY":90,"endX":90,"endY":60,"lineWidth":5}`),
		event(4, domain.ToolCircle, `{"x":50,"y":50,"radius":20,"color":"#0f0"}`),
	}

	whole := NewSurface(100, 100)
	parts := NewSurface(100, 100)
	defer whole.Close()
	defer parts.Close()

	Render(whole, events)
	Render(parts, events[:1])
	Render(parts, events[1:3])
	Render(parts, events[3:])

	assert.Equal(t, whole.Snapshot(), parts.Snapshot())
}

func TestRender_PenNeedsTwoPoints(t *testing.T) {
	s := NewSurface(50, 50)
	defer s.Close()
	blank := s.Snapshot()

	Render(s, []domain.CanvasEvent{
		event(1, domain.ToolPen, `{"points":[{"x":5,"y":5}]}`),
		event(2, domain.ToolPen, `{"points":"nope"}`),
	})
	assert.Equal(t, blank, s.Snapshot())
}

func TestRender_EmojiWithoutFontIsNoop(t *testing.T) {
	s := NewSurface(50, 50)
	defer s.Close()
	blank := s.Snapshot()

	n := Render(s, []domain.CanvasEvent{event(1, domain.ToolEmoji, `{"x":25,"y":25,"emoji":"🎉","size":30}`)})
	assert.Equal(t, 1, n)
	assert.Equal(t, blank, s.Snapshot())
}

func TestSurface_SnapshotRestore(t *testing.T) {
	s := NewSurface(60, 60)
	defer s.Close()

	before := s.Snapshot()
	Render(s, []domain.CanvasEvent{event(1, domain.ToolLine, `{"startX":0,"startY":30,"endX":60,"endY":30,"lineWidth":6}`)})
	after := s.Snapshot()
	require.NotEqual(t, before, after)

	s.Restore(before)
	assert.Equal(t, before, s.Snapshot())
	s.Restore(after)
	assert.Equal(t, after, s.Snapshot())

	// 尺寸不符的快照被忽略
	s.Restore(Snapshot{1, 2, 3})
	assert.Equal(t, after, s.Snapshot())
}

func TestSurface_EncodePNG(t *testing.T) {
	s := NewSurface(20, 10)
	defer s.Close()

	var buf bytes.Buffer
	require.NoError(t, s.EncodePNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())
}

func TestDecode(t *testing.T) {
	shape, err := Decode(domain.ToolCircle, []byte(`{"x":"12.5","y":3,"radius":4,"lineWidth":-2}`))
	require.NoError(t, err)
	c, ok := shape.(Circle)
	require.True(t, ok)
	assert.Equal(t, 12.5, c.X)
	assert.Equal(t, DefaultLineWidth, c.LineWidth)
	assert.Equal(t, DefaultColor, c.Color)

	shape, err = Decode(domain.ToolEmoji, []byte(`{"x":1,"y":2,"emoji":"⭐"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultEmojiSize, shape.(Emoji).Size)

	shape, err = Decode(domain.ToolPen, []byte(`{"points":[{"x":1,"y":1},{"x":"bad"},{"x":2,"y":2}],"color":"#abc"}`))
	require.NoError(t, err)
	pen := shape.(Pen)
	assert.Len(t, pen.Points, 2)
	assert.Equal(t, "#abc", pen.Color)

	_, err = Decode(domain.ToolLine, []byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrUndrawable)
	_, err = Decode(domain.ToolLine, []byte(`null`))
	assert.ErrorIs(t, err, ErrUndrawable)
	_, err = Decode(domain.Tool("laser"), []byte(`{}`))
	assert.ErrorIs(t, err, ErrUndrawable)
}
