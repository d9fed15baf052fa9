package http

import (
	"net/http"

	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
)

// PresenceHandler 处理加入、离开、心跳和在线列表
type PresenceHandler struct {
	rooms    *RoomHandler
	presence *service.PresenceService
}

func NewPresenceHandler(rooms *RoomHandler, presence *service.PresenceService) *PresenceHandler {
	if rooms == nil || presence == nil {
		panic("dependencies cannot be nil for PresenceHandler")
	}
	return &PresenceHandler{rooms: rooms, presence: presence}
}

// Join POST /api/rooms/:code/join
func (h *PresenceHandler) Join(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	room, ok := h.rooms.resolveRoom(c)
	if !ok {
		return
	}
	p, err := h.presence.Join(c.Request.Context(), room.ID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewParticipantDTO(p))
}

// Leave POST /api/rooms/:code/leave
func (h *PresenceHandler) Leave(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	room, ok := h.rooms.resolveRoom(c)
	if !ok {
		return
	}
	if err := h.presence.Leave(c.Request.Context(), room.ID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}

// Heartbeat POST /api/rooms/:code/heartbeat
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	room, ok := h.rooms.resolveRoom(c)
	if !ok {
		return
	}
	if err := h.presence.Heartbeat(c.Request.Context(), room.ID, userID); err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"success": true})
}

// Participants GET /api/rooms/:code/participants
func (h *PresenceHandler) Participants(c *gin.Context) {
	room, ok := h.rooms.resolveRoom(c)
	if !ok {
		return
	}
	participants, err := h.presence.ActiveNow(c.Request.Context(), room.ID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewParticipantDTOs(participants))
}
