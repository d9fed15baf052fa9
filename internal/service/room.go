package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"

	"github.com/sirupsen/logrus"
)

// RoomService 负责房间的创建、查找和设置。
type RoomService struct {
	roomRepo        repository.RoomRepository
	participantRepo repository.ParticipantRepository
	clock           Clock
	codeGen         CodeGenerator
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, participantRepo repository.ParticipantRepository, opts ...Option) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if participantRepo == nil {
		panic("ParticipantRepository cannot be nil for RoomService")
	}
	o := buildOptions(opts)
	return &RoomService{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		clock:           o.clock,
		codeGen:         o.codeGen,
	}
}

// CreateRoom 创建新房间并把创建者登记为第一个参与者。
// 显式传入的 false 会被保留，缺省值由调用方决定。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID string, isPublic, allowDrawing bool) (*domain.Room, error) {
	logCtx := logrus.WithField("creator_id", creatorID)
	if creatorID == "" {
		return nil, fmt.Errorf("%w: creator id is required", ErrValidation)
	}

	// 1. 分配房间码并插入。存在性检查只是快速路径，真正的保证来自唯一索引：
	//    并发创建撞码时 Create 返回 ErrDuplicateEntry，重新生成即可。
	//    生成和插入冲突共用同一个尝试次数上限。
	var room *domain.Room
	remaining := maxCodeAttempts
	for room == nil {
		code, err := s.nextFreeCode(ctx, &remaining)
		if err != nil {
			return nil, err
		}

		candidate := &domain.Room{
			Code:         code,
			CreatorID:    creatorID,
			IsPublic:     isPublic,
			AllowDrawing: allowDrawing,
		}
		err = s.roomRepo.Create(ctx, candidate)
		switch {
		case err == nil:
			room = candidate
		case errors.Is(err, repository.ErrDuplicateEntry):
			logCtx.WithField("code", code).Warnf("Room code taken by a concurrent insert, retrying (attempt %d)", maxCodeAttempts-remaining)
		default:
			logCtx.WithError(err).Error("Failed to save new room to database")
			return nil, ErrInternalServer
		}
	}
	logCtx = logCtx.WithFields(logrus.Fields{"room_id": room.ID, "code": room.Code})

	// 2. 登记创建者
	now := s.clock.Now().UTC().Truncate(timestampPrecision)
	creator := &domain.Participant{RoomID: room.ID, UserID: creatorID, JoinedAt: now, LastSeen: now}
	if err := s.participantRepo.Upsert(ctx, creator); err != nil {
		logCtx.WithError(err).Error("Room created but enrolling the creator failed")
		return nil, ErrInternalServer
	}

	logCtx.Info("Room created successfully")
	return room, nil
}

// GetRoomByCode 按房间码查找，大小写不敏感。
func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*domain.Room, error) {
	code = NormalizeCode(code)
	logCtx := logrus.WithField("code", code)
	if len(code) != RoomCodeLength {
		return nil, ErrRoomNotFound
	}
	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Debug("GetRoomByCode: Room not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("GetRoomByCode: Repository error")
		return nil, ErrInternalServer
	}
	return room, nil
}

// FindRoomByID 按 ID 查找房间
func (s *RoomService) FindRoomByID(ctx context.Context, roomID uint) (*domain.Room, error) {
	return loadRoom(ctx, s.roomRepo, roomID)
}

// UpdateSettings 修改房间设置，只有创建者可以调用。nil 字段不变。
func (s *RoomService) UpdateSettings(ctx context.Context, roomID uint, requesterID string, settings domain.RoomSettings) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": requesterID})

	room, err := loadRoom(ctx, s.roomRepo, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsCreator(requesterID) {
		logCtx.Warn("UpdateSettings rejected: requester is not the creator")
		return nil, ErrForbidden
	}
	if !settings.ApplyTo(room) {
		return room, nil
	}

	if err := s.roomRepo.Save(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to save room settings")
		return nil, ErrInternalServer
	}
	logCtx.WithFields(logrus.Fields{"is_public": room.IsPublic, "allow_drawing": room.AllowDrawing}).Info("Room settings updated")
	return room, nil
}

// GenerateUniqueCode 生成一个当前未被占用的房间码，最多尝试 10 次。
// 连续撞码说明码空间异常拥挤，直接失败而不是无限重试。
func (s *RoomService) GenerateUniqueCode(ctx context.Context) (string, error) {
	remaining := maxCodeAttempts
	return s.nextFreeCode(ctx, &remaining)
}

// nextFreeCode 每生成一个码消耗一次 remaining，用完时返回 ErrCodeSpaceExhausted
func (s *RoomService) nextFreeCode(ctx context.Context, remaining *int) (string, error) {
	for *remaining > 0 {
		*remaining--
		attempt := maxCodeAttempts - *remaining

		code, err := s.codeGen()
		if err != nil {
			logrus.WithError(err).Error("Room code generator failed")
			return "", ErrInternalServer
		}

		exists, err := s.roomRepo.IsCodeExists(ctx, code)
		if err != nil {
			logrus.WithError(err).WithField("code", code).Error("Database error checking room code uniqueness")
			return "", ErrInternalServer
		}
		if !exists {
			logrus.WithField("code", code).Debugf("Generated unique room code after %d attempt(s)", attempt)
			return code, nil
		}
		logrus.WithField("code", code).Warnf("Generated room code already exists, retrying (attempt %d)", attempt)
	}
	logrus.Errorf("Failed to allocate a unique room code after %d attempts", maxCodeAttempts)
	return "", ErrCodeSpaceExhausted
}

// NormalizeCode 去掉空白并转为大写
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// loadRoom 查找房间并把仓库错误映射为业务错误
func loadRoom(ctx context.Context, roomRepo repository.RoomRepository, roomID uint) (*domain.Room, error) {
	room, err := roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load room")
		return nil, ErrInternalServer
	}
	return room, nil
}
