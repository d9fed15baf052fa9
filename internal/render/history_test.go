package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistory_UndoRedoBranch(t *testing.T) {
	h := NewHistory[string](0)
	assert.False(t, h.CanUndo())

	h.Commit("S0")
	h.Commit("S1")
	h.Commit("S2")

	s, ok := h.Undo()
	assert.True(t, ok)
	assert.Equal(t, "S1", s)

	s, ok = h.Redo()
	assert.True(t, ok)
	assert.Equal(t, "S2", s)

	_, ok = h.Redo()
	assert.False(t, ok, "redo at the tip is a no-op")

	h.Undo()
	h.Commit("S3") // 丢弃 S2
	assert.Equal(t, 3, h.Len())
	assert.False(t, h.CanRedo())

	s, _ = h.Undo()
	assert.Equal(t, "S1", s)
	s, _ = h.Undo()
	assert.Equal(t, "S0", s)

	_, ok = h.Undo()
	assert.False(t, ok, "undo at the base is a no-op")
	cur, _ := h.Current()
	assert.Equal(t, "S0", cur)
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory[int](3)
	for i := 0; i < 5; i++ {
		h.Commit(i)
	}
	assert.Equal(t, 3, h.Len())

	v, _ := h.Undo()
	assert.Equal(t, 3, v)
	v, _ = h.Undo()
	assert.Equal(t, 2, v)
	assert.False(t, h.CanUndo())
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory[int](0)
	h.Commit(1)
	h.Reset()
	_, ok := h.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, h.Len())
}
