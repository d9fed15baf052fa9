package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总所有 HTTP handler
type Handlers struct {
	Room     *RoomHandler
	Presence *PresenceHandler
	Canvas   *CanvasHandler
}

// RegisterRoutes 在已挂好认证中间件的分组上注册房间路由
func RegisterRoutes(api *gin.RouterGroup, h Handlers) {
	api.GET("/auth/user", Me)

	rooms := api.Group("/rooms")
	{
		rooms.POST("", h.Room.CreateRoom)
		rooms.GET("/:code", h.Room.GetRoom)
		rooms.PUT("/:code/settings", h.Room.UpdateSettings)

		rooms.POST("/:code/join", h.Presence.Join)
		rooms.POST("/:code/leave", h.Presence.Leave)
		rooms.POST("/:code/heartbeat", h.Presence.Heartbeat)
		rooms.GET("/:code/participants", h.Presence.Participants)

		rooms.POST("/:code/canvas", h.Canvas.Append)
		rooms.GET("/:code/canvas", h.Canvas.Fetch)
		rooms.DELETE("/:code/canvas", h.Canvas.Clear)
		rooms.GET("/:code/preview", h.Canvas.Preview)
	}
}

// Me GET /api/auth/user 返回当前身份
func Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"id": userID})
}
