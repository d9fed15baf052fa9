package http

import (
	"net/http"
	"time"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CanvasHandler 处理画布事件的追加、增量读取、清空和预览
type CanvasHandler struct {
	rooms    *RoomHandler
	canvas   *service.CanvasService
	previews *service.PreviewService // 可为 nil
}

func NewCanvasHandler(rooms *RoomHandler, canvas *service.CanvasService, previews *service.PreviewService) *CanvasHandler {
	if rooms == nil || canvas == nil {
		panic("dependencies cannot be nil for CanvasHandler")
	}
	return &CanvasHandler{rooms: rooms, canvas: canvas, previews: previews}
}

// setClearedAt 写 X-Canvas-Cleared-At 头，从未清空时不写
func setClearedAt(c *gin.Context, room *domain.Room) {
	if room.ClearedAt != nil {
		c.Header(dto.ClearedAtHeader, room.ClearedAt.UTC().Format(time.RFC3339Nano))
	}
}

// Append POST /api/rooms/:code/canvas
func (h *CanvasHandler) Append(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req dto.AppendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Debug("Handler.Append: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: tool and data are required")
		return
	}
	room, ok := h.rooms.resolveRoom(c)
	if !ok {
		return
	}

	event, err := h.canvas.Append(c.Request.Context(), room.ID, userID, req.Tool, req.Data)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, dto.NewCanvasEventDTO(event))
}

// Fetch GET /api/rooms/:code/canvas?since=RFC3339Nano
func (h *CanvasHandler) Fetch(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			ErrorResponse(c, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = &t
	}
	room, ok := h.rooms.resolveRoom(c)
	if !ok {
		return
	}

	events, err := h.canvas.FetchSince(c.Request.Context(), room.ID, since)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	setClearedAt(c, room)
	SuccessResponse(c, http.StatusOK, dto.NewCanvasEventDTOs(events))
}

// Clear DELETE /api/rooms/:code/canvas
func (h *CanvasHandler) Clear(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	room, ok := h.rooms.resolveRoom(c)
	if !ok {
		return
	}
	cleared, err := h.canvas.Clear(c.Request.Context(), room.ID, userID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	setClearedAt(c, cleared)
	SuccessResponse(c, http.StatusOK, gin.H{"success": true, "clearedAt": cleared.ClearedAt})
}

// Preview GET /api/rooms/:code/preview
func (h *CanvasHandler) Preview(c *gin.Context) {
	if h.previews == nil {
		ErrorResponse(c, http.StatusNotFound, "previews are disabled")
		return
	}
	room, ok := h.rooms.resolveRoom(c)
	if !ok {
		return
	}
	png, err := h.previews.GetPreview(c.Request.Context(), room.ID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/png", png)
}
