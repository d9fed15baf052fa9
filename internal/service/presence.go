package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"

	"github.com/sirupsen/logrus"
)

// PresenceService 通过心跳推断在线状态。轮询传输没有可靠的断开信号，
// 所以 "在线" 定义为 last_seen 落在滑动窗口内，过期记录只在读取时过滤，不做清理。
type PresenceService struct {
	roomRepo        repository.RoomRepository
	participantRepo repository.ParticipantRepository
	clock           Clock
	window          time.Duration
}

// NewPresenceService 创建 PresenceService 实例
func NewPresenceService(roomRepo repository.RoomRepository, participantRepo repository.ParticipantRepository, opts ...Option) *PresenceService {
	if roomRepo == nil || participantRepo == nil {
		panic("repositories cannot be nil for PresenceService")
	}
	o := buildOptions(opts)
	return &PresenceService{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		clock:           o.clock,
		window:          o.presenceWindow,
	}
}

func (s *PresenceService) now() time.Time {
	return s.clock.Now().UTC().Truncate(timestampPrecision)
}

// Join 加入房间，已加入时只刷新 last_seen。幂等。
func (s *PresenceService) Join(ctx context.Context, roomID uint, userID string) (*domain.Participant, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if _, err := loadRoom(ctx, s.roomRepo, roomID); err != nil {
		return nil, err
	}

	now := s.now()
	p := &domain.Participant{RoomID: roomID, UserID: userID, JoinedAt: now, LastSeen: now}
	if err := s.participantRepo.Upsert(ctx, p); err != nil {
		logCtx.WithError(err).Error("Failed to upsert participant")
		return nil, ErrInternalServer
	}
	logCtx.Info("User joined room")
	return p, nil
}

// Heartbeat 刷新 last_seen，未加入时返回 ErrNotParticipant。
func (s *PresenceService) Heartbeat(ctx context.Context, roomID uint, userID string) error {
	err := s.participantRepo.Touch(ctx, roomID, userID, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrParticipantNotFound) {
			return ErrNotParticipant
		}
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "user_id": userID}).Error("Heartbeat failed")
		return ErrInternalServer
	}
	return nil
}

// Leave 删除参与者记录
func (s *PresenceService) Leave(ctx context.Context, roomID uint, userID string) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})
	if err := s.participantRepo.Delete(ctx, roomID, userID); err != nil {
		logCtx.WithError(err).Error("Failed to delete participant")
		return ErrInternalServer
	}
	logCtx.Info("User left room")
	return nil
}

// ActiveParticipants 返回 last_seen >= now-window 的参与者，window<=0 时使用默认窗口。
func (s *PresenceService) ActiveParticipants(ctx context.Context, roomID uint, now time.Time, window time.Duration) ([]domain.Participant, error) {
	if window <= 0 {
		window = s.window
	}
	participants, err := s.participantRepo.ListActiveSince(ctx, roomID, now.Add(-window))
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to list active participants")
		return nil, ErrInternalServer
	}
	return participants, nil
}

// ActiveNow 使用服务时钟和默认窗口
func (s *PresenceService) ActiveNow(ctx context.Context, roomID uint) ([]domain.Participant, error) {
	return s.ActiveParticipants(ctx, roomID, s.clock.Now(), s.window)
}
