package service_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
	"collaborative-canvas/internal/repository/mocks"
	"collaborative-canvas/internal/service"
)

func TestRoomService_CreateRoom_HonorsExplicitFalse(t *testing.T) {
	f := newFixture(t)

	room, err := f.rooms.CreateRoom(ctx, "alice", false, false)
	require.NoError(t, err)
	assert.False(t, room.IsPublic)
	assert.False(t, room.AllowDrawing)
	assert.Regexp(t, `^[0-9A-Z]{6}$`, room.Code)

	stored, err := f.rooms.GetRoomByCode(ctx, room.Code)
	require.NoError(t, err)
	assert.False(t, stored.IsPublic)
	assert.False(t, stored.AllowDrawing)
	assert.Equal(t, "alice", stored.CreatorID)
}

func TestRoomService_CreateRoom_EnrollsCreator(t *testing.T) {
	f := newFixture(t)

	room, err := f.rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)

	active, err := f.presence.ActiveNow(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].UserID)
}

func TestRoomService_CreateRoom_RequiresCreator(t *testing.T) {
	f := newFixture(t)
	_, err := f.rooms.CreateRoom(ctx, "", true, true)
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestRoomService_CodesAreUnique(t *testing.T) {
	f := newFixture(t)

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		room, err := f.rooms.CreateRoom(ctx, "creator", true, true)
		require.NoError(t, err)
		_, dup := seen[room.Code]
		require.False(t, dup, "code %s issued twice", room.Code)
		seen[room.Code] = struct{}{}
	}
}

func TestRoomService_GenerateUniqueCode_Exhausted(t *testing.T) {
	// Arrange: 生成器总是返回同一个已被占用的码
	mockRoomRepo := new(mocks.RoomRepository)
	mockParticipantRepo := new(mocks.ParticipantRepository)
	rooms := service.NewRoomService(mockRoomRepo, mockParticipantRepo,
		service.WithCodeGenerator(func() (string, error) { return "TAKEN1", nil }))

	mockRoomRepo.On("IsCodeExists", mock.Anything, "TAKEN1").Return(true, nil).Times(10)

	// Act
	code, err := rooms.GenerateUniqueCode(ctx)

	// Assert
	assert.Empty(t, code)
	assert.ErrorIs(t, err, service.ErrCodeSpaceExhausted)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_RetriesOnDuplicateInsert(t *testing.T) {
	// Arrange: 检查时码空闲，但插入时被并发请求抢先
	mockRoomRepo := new(mocks.RoomRepository)
	mockParticipantRepo := new(mocks.ParticipantRepository)
	codes := []string{"AAAAAA", "BBBBBB"}
	rooms := service.NewRoomService(mockRoomRepo, mockParticipantRepo,
		service.WithCodeGenerator(func() (string, error) {
			c := codes[0]
			codes = codes[1:]
			return c, nil
		}))

	mockRoomRepo.On("IsCodeExists", mock.Anything, mock.Anything).Return(false, nil).Twice()
	mockRoomRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.Room) bool { return r.Code == "AAAAAA" })).
		Return(repository.ErrDuplicateEntry).Once()
	mockRoomRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.Room) bool { return r.Code == "BBBBBB" })).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.Room).ID = 9 }).
		Return(nil).Once()
	mockParticipantRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.RoomID == 9 && p.UserID == "alice"
	})).Return(nil).Once()

	// Act
	room, err := rooms.CreateRoom(ctx, "alice", true, true)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", room.Code)
	mockRoomRepo.AssertExpectations(t)
	mockParticipantRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_SharesOneAttemptBudget(t *testing.T) {
	// Arrange: 每次检查都显示空闲，但每次插入都撞码
	mockRoomRepo := new(mocks.RoomRepository)
	mockParticipantRepo := new(mocks.ParticipantRepository)
	generated := 0
	rooms := service.NewRoomService(mockRoomRepo, mockParticipantRepo,
		service.WithCodeGenerator(func() (string, error) {
			generated++
			return "RACE01", nil
		}))

	mockRoomRepo.On("IsCodeExists", mock.Anything, "RACE01").Return(false, nil)
	mockRoomRepo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	// Act
	room, err := rooms.CreateRoom(ctx, "alice", true, true)

	// Assert: 生成和插入合计最多 10 次
	assert.Nil(t, room)
	assert.ErrorIs(t, err, service.ErrCodeSpaceExhausted)
	assert.Equal(t, 10, generated)
	mockRoomRepo.AssertNumberOfCalls(t, "Create", 10)
	mockParticipantRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestRoomService_CreateRoom_BudgetCountsTakenCodes(t *testing.T) {
	// Arrange: 前 9 个码已被占用，第 10 个插入时撞码，没有剩余次数
	mockRoomRepo := new(mocks.RoomRepository)
	mockParticipantRepo := new(mocks.ParticipantRepository)
	generated := 0
	rooms := service.NewRoomService(mockRoomRepo, mockParticipantRepo,
		service.WithCodeGenerator(func() (string, error) {
			generated++
			if generated < 10 {
				return "TAKEN1", nil
			}
			return "FREE01", nil
		}))

	mockRoomRepo.On("IsCodeExists", mock.Anything, "TAKEN1").Return(true, nil).Times(9)
	mockRoomRepo.On("IsCodeExists", mock.Anything, "FREE01").Return(false, nil).Once()
	mockRoomRepo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry).Once()

	// Act
	_, err := rooms.CreateRoom(ctx, "alice", true, true)

	// Assert
	assert.ErrorIs(t, err, service.ErrCodeSpaceExhausted)
	assert.Equal(t, 10, generated)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_RepositoryFailure(t *testing.T) {
	mockRoomRepo := new(mocks.RoomRepository)
	mockParticipantRepo := new(mocks.ParticipantRepository)
	rooms := service.NewRoomService(mockRoomRepo, mockParticipantRepo)

	mockRoomRepo.On("IsCodeExists", mock.Anything, mock.Anything).Return(false, errors.New("connection refused")).Once()

	_, err := rooms.CreateRoom(ctx, "alice", true, true)
	assert.ErrorIs(t, err, service.ErrInternalServer)
	mockParticipantRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestRoomService_GetRoomByCode(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)

	found, err := f.rooms.GetRoomByCode(ctx, "  "+strings.ToLower(room.Code)+" ")
	require.NoError(t, err)
	assert.Equal(t, room.ID, found.ID)

	_, err = f.rooms.GetRoomByCode(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	_, err = f.rooms.GetRoomByCode(ctx, "TOOLONG")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	assert.True(t, service.IsNotFound(err))
}

func TestRoomService_UpdateSettings(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)

	// 非创建者：Forbidden，状态不变
	_, err = f.rooms.UpdateSettings(ctx, room.ID, "mallory", domain.RoomSettings{AllowDrawing: boolPtr(false)})
	assert.ErrorIs(t, err, service.ErrForbidden)
	unchanged, err := f.rooms.FindRoomByID(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, unchanged.AllowDrawing)

	// 创建者：只修改给出的字段
	updated, err := f.rooms.UpdateSettings(ctx, room.ID, "alice", domain.RoomSettings{IsPublic: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsPublic)
	assert.True(t, updated.AllowDrawing)

	_, err = f.rooms.UpdateSettings(ctx, 999, "alice", domain.RoomSettings{IsPublic: boolPtr(true)})
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}
