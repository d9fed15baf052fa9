package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
)

// RoomRenderer 是 PreviewService 中用到的部分
type RoomRenderer interface {
	RenderRoom(ctx context.Context, roomID uint) ([]byte, error)
}

// PendingClearer 清除预览去抖标记
type PendingClearer interface {
	ClearPreviewPending(ctx context.Context, roomID uint) error
}

// PreviewRenderHandler 处理预览渲染任务
type PreviewRenderHandler struct {
	renderer RoomRenderer
	pending  PendingClearer // 可为 nil
}

// NewPreviewRenderHandler 创建 Handler 实例
func NewPreviewRenderHandler(renderer RoomRenderer, pending PendingClearer) *PreviewRenderHandler {
	if renderer == nil {
		panic("RoomRenderer cannot be nil for PreviewRenderHandler")
	}
	return &PreviewRenderHandler{renderer: renderer, pending: pending}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PreviewRenderHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
	})

	payload, err := tasks.ParsePreviewRenderPayload(t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to parse task payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", payload.RoomID)

	// 先清标记：渲染期间的新修改会再安排一次任务，不会被这次渲染吞掉
	if h.pending != nil {
		if err := h.pending.ClearPreviewPending(ctx, payload.RoomID); err != nil {
			logCtx.WithError(err).Warn("Failed to clear preview pending flag")
		}
	}

	png, err := h.renderer.RenderRoom(ctx, payload.RoomID)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			logCtx.Warn("Room vanished before preview render, skipping")
			return fmt.Errorf("room %d not found: %w", payload.RoomID, asynq.SkipRetry)
		}
		return fmt.Errorf("render preview for room %d: %w", payload.RoomID, err)
	}
	logCtx.WithField("bytes", len(png)).Info("Preview render task processed successfully")
	return nil
}
