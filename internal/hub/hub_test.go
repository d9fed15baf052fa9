package hub_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/domain"
	wshandler "collaborative-canvas/internal/handler/websocket"
	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/infra/persistence/memory"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/service"
)

func TestHub_PushesNoticesToRoomSubscribers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	rooms := service.NewRoomService(store.Rooms(), store.Participants())
	room, err := rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)

	h := hub.NewHub()
	go h.Run(ctx)

	router := gin.New()
	router.GET("/ws/rooms/:code", middleware.Auth("secret"), wshandler.NewWebSocketHandler(h, rooms, "").HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	token, err := middleware.NewToken("secret", "bob", time.Minute)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/rooms/" + room.Code + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.ClientCount(room.ID) == 1 }, 2*time.Second, 10*time.Millisecond)

	// 其他房间的提示不会送达
	require.NoError(t, h.Publish(ctx, domain.ChangeNotice{Type: domain.NoticeAppend, RoomID: room.ID + 1, EventID: 1}))
	require.NoError(t, h.Publish(ctx, domain.ChangeNotice{Type: domain.NoticeAppend, RoomID: room.ID, EventID: 42}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var notice domain.ChangeNotice
	require.NoError(t, json.Unmarshal(msg, &notice))
	assert.Equal(t, domain.NoticeAppend, notice.Type)
	assert.Equal(t, uint(42), notice.EventID)

	conn.Close()
	assert.Eventually(t, func() bool { return h.ClientCount(room.ID) == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_UnknownRoom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := memory.NewStore()
	rooms := service.NewRoomService(store.Rooms(), store.Participants())
	h := hub.NewHub()

	router := gin.New()
	router.GET("/ws/rooms/:code", middleware.Auth("secret"), wshandler.NewWebSocketHandler(h, rooms, "").HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()

	token, _ := middleware.NewToken("secret", "bob", time.Minute)
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/rooms/ZZZZZZ?token="+token, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}
