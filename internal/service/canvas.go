package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"

	"github.com/sirupsen/logrus"
)

// PreviewScheduler 在日志变化后安排一次预览重渲染，由任务队列实现
type PreviewScheduler interface {
	SchedulePreview(ctx context.Context, roomID uint) error
}

// CanvasService 维护房间的画布事件日志。
type CanvasService struct {
	roomRepo  repository.RoomRepository
	eventRepo repository.EventRepository
	notifier  repository.ChangeNotifier // 可为 nil
	scheduler PreviewScheduler          // 可为 nil
	clock     *eventClock

	// 同一房间的时间戳分配和插入必须串行，否则提交顺序可能与时间戳顺序不一致，
	// 增量轮询就会跳过晚提交的小时间戳事件。
	locksMu sync.Mutex
	locks   map[uint]*sync.Mutex
}

// NewCanvasService 创建 CanvasService 实例。notifier 和 scheduler 可以为 nil。
func NewCanvasService(roomRepo repository.RoomRepository, eventRepo repository.EventRepository, notifier repository.ChangeNotifier, scheduler PreviewScheduler, opts ...Option) *CanvasService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for CanvasService")
	}
	if eventRepo == nil {
		panic("EventRepository cannot be nil for CanvasService")
	}
	o := buildOptions(opts)
	return &CanvasService{
		roomRepo:  roomRepo,
		eventRepo: eventRepo,
		notifier:  notifier,
		scheduler: scheduler,
		clock:     newEventClock(o.clock),
		locks:     make(map[uint]*sync.Mutex),
	}
}

func (s *CanvasService) roomLock(roomID uint) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roomID] = l
	}
	return l
}

// Append 校验负载并追加一条事件，时间戳由服务端分配。
func (s *CanvasService) Append(ctx context.Context, roomID uint, authorID string, tool domain.Tool, data json.RawMessage) (*domain.CanvasEvent, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": authorID, "tool": tool})

	// 1. 校验负载
	if authorID == "" {
		return nil, fmt.Errorf("%w: author id is required", ErrValidation)
	}
	if err := domain.ValidatePayload(tool, data); err != nil {
		logCtx.WithError(err).Debug("Append rejected: invalid payload")
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// 2. 检查房间是否允许绘画，必须在任何写入之前
	room, err := loadRoom(ctx, s.roomRepo, roomID)
	if err != nil {
		return nil, err
	}
	if !room.AllowDrawing {
		logCtx.Info("Append rejected: drawing disabled")
		return nil, ErrDrawingDisabled
	}

	// 3. 分配时间戳并写入
	event := &domain.CanvasEvent{
		RoomID:   roomID,
		AuthorID: authorID,
		Tool:     tool,
		Data:     string(data),
	}
	lock := s.roomLock(roomID)
	lock.Lock()
	event.Timestamp = s.clock.Next()
	err = s.eventRepo.Append(ctx, event)
	lock.Unlock()
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Failed to append canvas event")
		return nil, ErrInternalServer
	}

	// 4. 通知与预览，失败只记录
	s.afterChange(ctx, domain.ChangeNotice{
		Type:      domain.NoticeAppend,
		RoomID:    roomID,
		EventID:   event.ID,
		Timestamp: event.Timestamp,
	})
	logCtx.WithField("event_id", event.ID).Debug("Canvas event appended")
	return event, nil
}

// FetchSince 返回 timestamp > since 的事件，since 为 nil 时返回完整历史。
func (s *CanvasService) FetchSince(ctx context.Context, roomID uint, since *time.Time) ([]domain.CanvasEvent, error) {
	if _, err := loadRoom(ctx, s.roomRepo, roomID); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.FetchSince(ctx, roomID, since)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to fetch canvas events")
		return nil, ErrInternalServer
	}
	return events, nil
}

// Clear 清空房间画布，只有创建者可以调用。
func (s *CanvasService) Clear(ctx context.Context, roomID uint, requesterID string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": requesterID})

	room, err := loadRoom(ctx, s.roomRepo, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsCreator(requesterID) {
		logCtx.Warn("Clear rejected: requester is not the creator")
		return nil, ErrForbidden
	}

	// 在房间锁内取时间戳，保证清空之后的事件时间戳都大于 clearedAt
	lock := s.roomLock(roomID)
	lock.Lock()
	clearedAt := s.clock.Next()
	err = s.eventRepo.ClearRoom(ctx, roomID, clearedAt)
	lock.Unlock()
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("Failed to clear canvas")
		return nil, ErrInternalServer
	}
	room.ClearedAt = &clearedAt
	room.UpdatedAt = clearedAt

	s.afterChange(ctx, domain.ChangeNotice{Type: domain.NoticeClear, RoomID: roomID, Timestamp: clearedAt})
	logCtx.Info("Canvas cleared")
	return room, nil
}

func (s *CanvasService) afterChange(ctx context.Context, notice domain.ChangeNotice) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": notice.RoomID, "notice": notice.Type})
	if s.notifier != nil {
		if err := s.notifier.Publish(ctx, notice); err != nil {
			logCtx.WithError(err).Warn("Failed to publish change notice")
		}
	}
	if s.scheduler != nil {
		if err := s.scheduler.SchedulePreview(ctx, notice.RoomID); err != nil {
			logCtx.WithError(err).Warn("Failed to schedule preview render")
		}
	}
}
