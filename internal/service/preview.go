package service

import (
	"bytes"
	"context"
	"errors"

	"collaborative-canvas/internal/render"
	"collaborative-canvas/internal/repository"

	"github.com/gogpu/gg/text"
	"github.com/sirupsen/logrus"
)

// PreviewService 在服务端把房间的完整日志渲染成 PNG 并保存，渲染逻辑与客户端共用。
type PreviewService struct {
	roomRepo  repository.RoomRepository
	eventRepo repository.EventRepository
	store     repository.PreviewStore
	width     int
	height    int
	font      *text.FontSource
}

// NewPreviewService 创建 PreviewService 实例，font 可以为 nil。
func NewPreviewService(roomRepo repository.RoomRepository, eventRepo repository.EventRepository, store repository.PreviewStore, width, height int, font *text.FontSource) *PreviewService {
	if roomRepo == nil || eventRepo == nil || store == nil {
		panic("dependencies cannot be nil for PreviewService")
	}
	return &PreviewService{
		roomRepo:  roomRepo,
		eventRepo: eventRepo,
		store:     store,
		width:     width,
		height:    height,
		font:      font,
	}
}

// RenderRoom 重放房间的完整日志并保存预览图，返回 PNG 字节。
func (s *PreviewService) RenderRoom(ctx context.Context, roomID uint) ([]byte, error) {
	logCtx := logrus.WithField("room_id", roomID)

	// 1. 读取完整日志
	if _, err := loadRoom(ctx, s.roomRepo, roomID); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.FetchSince(ctx, roomID, nil)
	if err != nil {
		logCtx.WithError(err).Error("Preview: failed to fetch canvas events")
		return nil, ErrInternalServer
	}

	// 2. 重放
	var opts []render.SurfaceOption
	if s.font != nil {
		opts = append(opts, render.WithEmojiFont(s.font))
	}
	surface := render.NewSurface(s.width, s.height, opts...)
	defer surface.Close()
	drawn := render.Render(surface, events)
	if skipped := len(events) - drawn; skipped > 0 {
		logCtx.WithField("skipped", skipped).Warn("Preview: some events could not be drawn")
	}

	// 3. 编码并保存
	var buf bytes.Buffer
	if err := surface.EncodePNG(&buf); err != nil {
		logCtx.WithError(err).Error("Preview: failed to encode PNG")
		return nil, ErrInternalServer
	}
	if err := s.store.PutPreview(ctx, roomID, buf.Bytes()); err != nil {
		logCtx.WithError(err).Error("Preview: failed to store PNG")
		return nil, ErrInternalServer
	}
	logCtx.WithFields(logrus.Fields{"events": len(events), "bytes": buf.Len()}).Info("Preview rendered")
	return buf.Bytes(), nil
}

// GetPreview 读取最近一次渲染的预览图
func (s *PreviewService) GetPreview(ctx context.Context, roomID uint) ([]byte, error) {
	png, err := s.store.GetPreview(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrPreviewNotFound) {
			return nil, ErrPreviewNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load preview")
		return nil, ErrInternalServer
	}
	return png, nil
}
