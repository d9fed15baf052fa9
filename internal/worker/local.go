package worker

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LocalScheduler 在进程内延迟执行预览渲染，没有 Redis (也就没有 asynq) 时使用。
// 同一房间在 delay 内的多次请求合并为一次渲染。
type LocalScheduler struct {
	renderer RoomRenderer
	delay    time.Duration

	mu      sync.Mutex
	timers  map[uint]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewLocalScheduler 创建 LocalScheduler
func NewLocalScheduler(renderer RoomRenderer, delay time.Duration) *LocalScheduler {
	if renderer == nil {
		panic("RoomRenderer cannot be nil for LocalScheduler")
	}
	return &LocalScheduler{renderer: renderer, delay: delay, timers: make(map[uint]*time.Timer)}
}

// SchedulePreview 实现 service.PreviewScheduler
func (l *LocalScheduler) SchedulePreview(_ context.Context, roomID uint) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return nil
	}
	if _, pending := l.timers[roomID]; pending {
		return nil
	}
	l.wg.Add(1)
	l.timers[roomID] = time.AfterFunc(l.delay, func() {
		defer l.wg.Done()
		l.mu.Lock()
		delete(l.timers, roomID)
		l.mu.Unlock()

		logCtx := logrus.WithField("room_id", roomID)
		if _, err := l.renderer.RenderRoom(context.Background(), roomID); err != nil {
			logCtx.WithError(err).Warn("Local preview render failed")
			return
		}
		logCtx.Debug("Local preview rendered")
	})
	return nil
}

// Stop 取消尚未开始的渲染并等待进行中的渲染结束
func (l *LocalScheduler) Stop() {
	l.mu.Lock()
	l.stopped = true
	for roomID, timer := range l.timers {
		if timer.Stop() {
			l.wg.Done()
		}
		delete(l.timers, roomID)
	}
	l.mu.Unlock()
	l.wg.Wait()
}
