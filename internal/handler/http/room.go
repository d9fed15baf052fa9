package http

import (
	"errors"
	"io"
	"net/http"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RoomHandler 处理房间的创建、查询和设置
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// resolveRoom 按路径中的 :code 查找房间，失败时已写好响应
func (h *RoomHandler) resolveRoom(c *gin.Context) (*domain.Room, bool) {
	room, err := h.roomService.GetRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		HandleServiceError(c, err)
		return nil, false
	}
	return room, true
}

// CreateRoom POST /api/rooms
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	// 1. 绑定请求体。空请求体等价于 {}
	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logrus.WithError(err).WithField("user_id", userID).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	// 2. 缺省字段视为 true，显式 false 保留
	isPublic := req.IsPublic == nil || *req.IsPublic
	allowDrawing := req.AllowDrawing == nil || *req.AllowDrawing

	room, err := h.roomService.CreateRoom(c.Request.Context(), userID, isPublic, allowDrawing)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewRoomDTO(room))
}

// GetRoom GET /api/rooms/:code
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, ok := h.resolveRoom(c)
	if !ok {
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewRoomDTO(room))
}

// UpdateSettings PUT /api/rooms/:code/settings
func (h *RoomHandler) UpdateSettings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	room, ok := h.resolveRoom(c)
	if !ok {
		return
	}

	updated, err := h.roomService.UpdateSettings(c.Request.Context(), room.ID, userID, req.Settings())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewRoomDTO(updated))
}
