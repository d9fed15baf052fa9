package websocket

import (
	"net/http"

	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler 把 HTTP 连接升级为变更提示订阅
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	hub         *hub.Hub
	roomService *service.RoomService
}

// NewWebSocketHandler 创建 WebSocketHandler。allowedOrigin 为空或 "*" 时不检查 Origin。
func NewWebSocketHandler(h *hub.Hub, roomService *service.RoomService, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if roomService == nil {
		panic("RoomService cannot be nil for WebSocketHandler")
	}
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				origin := r.Header.Get("Origin")
				return origin == "" || origin == allowedOrigin
			},
		},
		hub:         h,
		roomService: roomService,
	}
}

// HandleConnection GET /ws/rooms/:code
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	// 1. 认证用户
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	// 2. 校验房间
	room, err := h.roomService.GetRoomByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		if service.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		} else {
			logCtx.WithError(err).Error("WS Handler: Error checking room existence")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate room"})
		}
		return
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	// 3. 升级连接，Upgrade 失败时已写好 HTTP 响应
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logCtx.WithError(err).Warn("WS Handler: Failed to upgrade connection")
		return
	}

	// 4. 注册并启动读写
	client := hub.NewClient(h.hub, conn, room.ID, userID)
	if !h.hub.QueueMessage(hub.HubMessage{Type: hub.MsgRegister, Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	client.Run()
	logCtx.Info("WS Handler: Subscriber connected")
}
