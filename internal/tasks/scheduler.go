package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Enqueuer 是 asynq.Client 中用到的部分
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Debouncer 在一个窗口内只放行第一次调用，由 Redis SETNX 实现
type Debouncer interface {
	TryMarkPreviewPending(ctx context.Context, roomID uint, window time.Duration) (bool, error)
}

// PreviewScheduler 把日志变化转换为延迟执行的预览渲染任务。
// 连续绘画只会在 delay 窗口内产生一个任务，任务开始执行时清除标记。
type PreviewScheduler struct {
	enqueuer  Enqueuer
	debouncer Debouncer // 可为 nil
	delay     time.Duration
	now       func() time.Time
}

// NewPreviewScheduler 创建 PreviewScheduler
func NewPreviewScheduler(enqueuer Enqueuer, debouncer Debouncer, delay time.Duration) *PreviewScheduler {
	if enqueuer == nil {
		panic("Enqueuer cannot be nil for PreviewScheduler")
	}
	return &PreviewScheduler{enqueuer: enqueuer, debouncer: debouncer, delay: delay, now: time.Now}
}

// SchedulePreview 安排一次渲染，窗口内已有待执行任务时直接返回
func (s *PreviewScheduler) SchedulePreview(ctx context.Context, roomID uint) error {
	logCtx := logrus.WithField("room_id", roomID)
	if s.debouncer != nil {
		first, err := s.debouncer.TryMarkPreviewPending(ctx, roomID, s.delay+time.Minute)
		if err != nil {
			// 去抖失败时仍然入队，多渲染一次没有坏处
			logCtx.WithError(err).Warn("Preview debounce check failed")
		} else if !first {
			logCtx.Debug("Preview render already pending")
			return nil
		}
	}

	task, err := NewPreviewRenderTask(roomID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("create preview task for room %d: %w", roomID, err)
	}
	info, err := s.enqueuer.EnqueueContext(ctx, task,
		asynq.Queue(QueueLow),
		asynq.ProcessIn(s.delay),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue preview task for room %d: %w", roomID, err)
	}
	logCtx.WithField("task_id", info.ID).Debug("Preview render scheduled")
	return nil
}
