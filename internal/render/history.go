package render

// History 是线性的撤销/重做栈。在撤销之后提交会永久丢弃被撤销的分支。
// limit > 0 时只保留最近 limit 个条目。
type History[S any] struct {
	entries []S
	pos     int // 当前条目下标，空时为 -1
	limit   int
}

// NewHistory 创建历史栈，limit <= 0 表示不限制长度
func NewHistory[S any](limit int) *History[S] {
	return &History[S]{pos: -1, limit: limit}
}

// Commit 丢弃 pos 之后的条目，追加 s 并移动到末尾
func (h *History[S]) Commit(s S) {
	h.entries = append(h.entries[:h.pos+1], s)
	if h.limit > 0 && len(h.entries) > h.limit {
		drop := len(h.entries) - h.limit
		var zero S
		for i := 0; i < drop; i++ {
			h.entries[i] = zero
		}
		h.entries = h.entries[drop:]
	}
	h.pos = len(h.entries) - 1
}

// Undo 回到上一个条目。已在最早条目时不做任何事并返回 false。
func (h *History[S]) Undo() (S, bool) {
	if h.pos <= 0 {
		var zero S
		return zero, false
	}
	h.pos--
	return h.entries[h.pos], true
}

// Redo 前进到下一个条目。已在末尾时返回 false。
func (h *History[S]) Redo() (S, bool) {
	if h.pos < 0 || h.pos >= len(h.entries)-1 {
		var zero S
		return zero, false
	}
	h.pos++
	return h.entries[h.pos], true
}

// Current 当前条目
func (h *History[S]) Current() (S, bool) {
	if h.pos < 0 {
		var zero S
		return zero, false
	}
	return h.entries[h.pos], true
}

func (h *History[S]) CanUndo() bool { return h.pos > 0 }
func (h *History[S]) CanRedo() bool { return h.pos >= 0 && h.pos < len(h.entries)-1 }
func (h *History[S]) Len() int      { return len(h.entries) }

// Reset 清空历史
func (h *History[S]) Reset() {
	h.entries = nil
	h.pos = -1
}
