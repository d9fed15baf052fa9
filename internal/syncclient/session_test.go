package syncclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
	handler "collaborative-canvas/internal/handler/http"
	wshandler "collaborative-canvas/internal/handler/websocket"
	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/infra/persistence/memory"
	"collaborative-canvas/internal/middleware"
	"collaborative-canvas/internal/render"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/syncclient"
)

const testSecret = "sync-secret"

type env struct {
	srv     *httptest.Server
	clients map[string]*syncclient.Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logrus.SetLevel(logrus.WarnLevel)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := hub.NewHub()
	go h.Run(ctx)

	store := memory.NewStore()
	roomSvc := service.NewRoomService(store.Rooms(), store.Participants())
	canvasSvc := service.NewCanvasService(store.Rooms(), store.Events(), h, nil)
	presenceSvc := service.NewPresenceService(store.Rooms(), store.Participants())

	rooms := handler.NewRoomHandler(roomSvc)
	router := gin.New()
	auth := middleware.Auth(testSecret)
	handler.RegisterRoutes(router.Group("/api", auth), handler.Handlers{
		Room:     rooms,
		Presence: handler.NewPresenceHandler(rooms, presenceSvc),
		Canvas:   handler.NewCanvasHandler(rooms, canvasSvc, nil),
	})
	router.GET("/ws/rooms/:code", auth, wshandler.NewWebSocketHandler(h, roomSvc, "").HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	e := &env{srv: srv, clients: map[string]*syncclient.Client{}}
	for _, user := range []string{"alice", "bob", "carol"} {
		token, err := middleware.NewToken(testSecret, user, time.Hour)
		require.NoError(t, err)
		e.clients[user] = syncclient.NewClient(srv.URL, token)
	}
	return e
}

func (e *env) session(t *testing.T, user, code string, cfg syncclient.Config) *syncclient.Session {
	t.Helper()
	if cfg.Width == 0 {
		cfg.Width, cfg.Height = 80, 60
	}
	s := syncclient.NewSession(e.clients[user], code, cfg)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func boolPtr(b bool) *bool { return &b }

func rect(x, y float64) json.RawMessage {
	raw, _ := json.Marshal(map[string]interface{}{"x": x, "y": y, "width": 20, "height": 12, "color": "#FF0000"})
	return raw
}

var ctx = context.Background()

func TestSessions_ConvergeOnTheSameLog(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, nil, nil)
	require.NoError(t, err)

	alice := e.session(t, "alice", room.Code, syncclient.Config{})
	bob := e.session(t, "bob", room.Code, syncclient.Config{})

	_, err = alice.Draw(ctx, domain.ToolRectangle, rect(5, 5))
	require.NoError(t, err)
	_, err = bob.Draw(ctx, domain.ToolLine, json.RawMessage(`{"startX":0,"startY":0,"endX":70,"endY":50}`))
	require.NoError(t, err)
	_, err = alice.Draw(ctx, domain.ToolCircle, json.RawMessage(`{"x":30,"y":20,"radius":8}`))
	require.NoError(t, err)

	require.NoError(t, alice.Sync(ctx))
	require.NoError(t, bob.Sync(ctx))
	// 再轮询一次不会重复重放
	require.NoError(t, bob.Sync(ctx))

	require.Len(t, alice.EventIDs(), 3)
	assert.Equal(t, alice.EventIDs(), bob.EventIDs())
	assert.Equal(t, alice.LastRendered(), bob.LastRendered())

	// 不做任何重建，像素也与新加入会话的完整重放一致
	carol := e.session(t, "carol", room.Code, syncclient.Config{})
	require.NoError(t, carol.Sync(ctx))

	assert.Equal(t, alice.Snapshot(), bob.Snapshot())
	assert.Equal(t, alice.Snapshot(), carol.Snapshot())
}

var (
	blueBar = json.RawMessage(`{"startX":0,"startY":30,"endX":80,"endY":30,"color":"#0000FF","lineWidth":9}`)
	redBar  = json.RawMessage(`{"startX":40,"startY":0,"endX":40,"endY":60,"color":"#FF0000","lineWidth":9}`)
)

// freshReplay 返回一个从空白画布读取完整日志的会话画面
func (e *env) freshReplay(t *testing.T, code string) render.Snapshot {
	t.Helper()
	carol := e.session(t, "carol", code, syncclient.Config{})
	require.NoError(t, carol.Sync(ctx))
	return carol.Snapshot()
}

func TestSession_OverlappingDrawsFollowLogOrder(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, nil, nil)
	require.NoError(t, err)
	alice := e.session(t, "alice", room.Code, syncclient.Config{})
	bob := e.session(t, "bob", room.Code, syncclient.Config{})

	// bob 的笔画先入日志，alice 在读回之前画了一笔重叠的
	_, err = bob.Draw(ctx, domain.ToolLine, blueBar)
	require.NoError(t, err)
	_, err = alice.Draw(ctx, domain.ToolLine, redBar)
	require.NoError(t, err)

	require.NoError(t, alice.Sync(ctx))
	require.NoError(t, bob.Sync(ctx))
	assert.Equal(t, alice.EventIDs(), bob.EventIDs())

	want := e.freshReplay(t, room.Code)
	assert.Equal(t, want, bob.Snapshot())
	assert.Equal(t, want, alice.Snapshot())

	// 重画后提交了新快照，撤销仍可用
	assert.True(t, alice.Undo())
}

func TestSession_RemoteAppendBeforeUnsyncedDraw(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, nil, nil)
	require.NoError(t, err)
	alice := e.session(t, "alice", room.Code, syncclient.Config{})

	_, err = e.clients["bob"].Append(ctx, room.Code, domain.ToolLine, blueBar)
	require.NoError(t, err)
	_, err = alice.Draw(ctx, domain.ToolLine, redBar)
	require.NoError(t, err)
	require.NoError(t, alice.Sync(ctx))

	assert.Len(t, alice.EventIDs(), 2)
	assert.Equal(t, e.freshReplay(t, room.Code), alice.Snapshot())

	// 之后的增量轮询继续保持一致
	_, err = e.clients["bob"].Append(ctx, room.Code, domain.ToolRectangle, rect(10, 10))
	require.NoError(t, err)
	require.NoError(t, alice.Sync(ctx))
	assert.Equal(t, e.freshReplay(t, room.Code), alice.Snapshot())
}

// syncOnAppend 在追加请求返回之后、响应交给调用方之前执行 hook
type syncOnAppend struct {
	next http.RoundTripper
	hook func()
}

func (s *syncOnAppend) RoundTrip(r *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(r)
	if err == nil && r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/canvas") && s.hook != nil {
		s.hook()
	}
	return resp, err
}

func TestSession_PollBeforeAppendResponseDoesNotDoublePaint(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, nil, nil)
	require.NoError(t, err)

	token, err := middleware.NewToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)
	transport := &syncOnAppend{next: http.DefaultTransport}
	client := syncclient.NewClient(e.srv.URL, token, syncclient.WithHTTPClient(&http.Client{Transport: transport}))
	alice := syncclient.NewSession(client, room.Code, syncclient.Config{Width: 80, Height: 60})
	t.Cleanup(func() { _ = alice.Close() })
	transport.hook = func() {
		transport.hook = nil
		require.NoError(t, alice.Sync(ctx))
	}

	event, err := alice.Draw(ctx, domain.ToolLine, redBar)
	require.NoError(t, err)
	assert.Equal(t, []uint{event.ID}, alice.EventIDs())
	assert.Equal(t, e.freshReplay(t, room.Code), alice.Snapshot())

	require.NoError(t, alice.Sync(ctx))
	assert.Equal(t, e.freshReplay(t, room.Code), alice.Snapshot())
}

func TestSession_AckedDrawAdvancesWatermark(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, nil, nil)
	require.NoError(t, err)
	alice := e.session(t, "alice", room.Code, syncclient.Config{})

	assert.Nil(t, alice.LastRendered())
	event, err := alice.Draw(ctx, domain.ToolRectangle, rect(1, 1))
	require.NoError(t, err)
	afterDraw := alice.Snapshot()

	require.NoError(t, alice.Sync(ctx))
	require.NotNil(t, alice.LastRendered())
	assert.True(t, alice.LastRendered().Equal(event.Timestamp))
	assert.Equal(t, []uint{event.ID}, alice.EventIDs())
	assert.Equal(t, afterDraw, alice.Snapshot())
}

func TestSession_ResetsAfterClear(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, nil, nil)
	require.NoError(t, err)
	bob := e.session(t, "bob", room.Code, syncclient.Config{})
	blank := bob.Snapshot()

	_, err = e.clients["alice"].Append(ctx, room.Code, domain.ToolRectangle, rect(2, 2))
	require.NoError(t, err)
	require.NoError(t, bob.Sync(ctx))
	require.Len(t, bob.EventIDs(), 1)
	assert.NotEqual(t, blank, bob.Snapshot())

	_, err = e.clients["alice"].Clear(ctx, room.Code)
	require.NoError(t, err)
	require.NoError(t, bob.Sync(ctx))
	assert.Empty(t, bob.EventIDs())
	assert.Nil(t, bob.LastRendered())
	assert.Equal(t, blank, bob.Snapshot())

	after, err := e.clients["alice"].Append(ctx, room.Code, domain.ToolRectangle, rect(30, 30))
	require.NoError(t, err)
	require.NoError(t, bob.Sync(ctx))
	assert.Equal(t, []uint{after.ID}, bob.EventIDs())
}

func TestSession_RejectedDrawIsRolledBack(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, boolPtr(true), boolPtr(false))
	require.NoError(t, err)
	bob := e.session(t, "bob", room.Code, syncclient.Config{})
	blank := bob.Snapshot()

	_, err = bob.Draw(ctx, domain.ToolRectangle, rect(3, 3))
	require.Error(t, err)
	assert.True(t, syncclient.IsStatus(err, http.StatusBadRequest))
	assert.Equal(t, blank, bob.Snapshot())
	assert.False(t, bob.Undo())
}

func TestSession_UndoRedoIsLocalOnly(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, nil, nil)
	require.NoError(t, err)
	alice := e.session(t, "alice", room.Code, syncclient.Config{})
	blank := alice.Snapshot()

	_, err = alice.Draw(ctx, domain.ToolRectangle, rect(4, 4))
	require.NoError(t, err)
	drawn := alice.Snapshot()

	assert.True(t, alice.Undo())
	assert.Equal(t, blank, alice.Snapshot())
	assert.False(t, alice.Undo())
	assert.True(t, alice.Redo())
	assert.Equal(t, drawn, alice.Snapshot())
	assert.False(t, alice.Redo())

	res, err := e.clients["bob"].FetchSince(ctx, room.Code, nil)
	require.NoError(t, err)
	assert.Len(t, res.Events, 1, "撤销不影响共享日志")
}

func TestSession_RunPollsRosterAndLeaves(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, nil, nil)
	require.NoError(t, err)

	bob := e.session(t, "bob", room.Code, syncclient.Config{
		CanvasInterval:    20 * time.Millisecond,
		RosterInterval:    20 * time.Millisecond,
		HeartbeatInterval: 20 * time.Millisecond,
		PushNotices:       true,
	})
	changes := make(chan struct{}, 64)
	bob.OnChange(func() {
		select {
		case changes <- struct{}{}:
		default:
		}
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- bob.Run(runCtx) }()

	event, err := e.clients["alice"].Append(ctx, room.Code, domain.ToolRectangle, rect(6, 6))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ids := bob.EventIDs()
		return len(ids) == 1 && ids[0] == event.ID
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		users := map[string]bool{}
		for _, p := range bob.Roster() {
			users[p.UserID] = true
		}
		return users["alice"] && users["bob"]
	}, 3*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, changes)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}

	roster, err := e.clients["alice"].Participants(ctx, room.Code)
	require.NoError(t, err)
	require.Len(t, roster, 1)
	assert.Equal(t, "alice", roster[0].UserID)
}

func TestSession_RunUnknownRoom(t *testing.T) {
	e := newEnv(t)
	s := e.session(t, "bob", "ZZZZZZ", syncclient.Config{})

	err := s.Run(ctx)
	require.Error(t, err)
	assert.True(t, syncclient.IsStatus(err, http.StatusNotFound))
}

func TestClient_RoomSettingsAndErrors(t *testing.T) {
	e := newEnv(t)
	room, err := e.clients["alice"].CreateRoom(ctx, boolPtr(false), nil)
	require.NoError(t, err)
	assert.False(t, room.IsPublic)
	assert.True(t, room.AllowDrawing)

	got, err := e.clients["bob"].GetRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = e.clients["bob"].UpdateSettings(ctx, room.Code, dto.UpdateSettingsRequest{AllowDrawing: boolPtr(false)})
	assert.True(t, syncclient.IsStatus(err, http.StatusForbidden))

	updated, err := e.clients["alice"].UpdateSettings(ctx, room.Code, dto.UpdateSettingsRequest{AllowDrawing: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, updated.AllowDrawing)

	_, err = e.clients["bob"].Clear(ctx, room.Code)
	assert.True(t, syncclient.IsStatus(err, http.StatusForbidden))

	err = e.clients["carol"].Heartbeat(ctx, room.Code)
	assert.True(t, syncclient.IsStatus(err, http.StatusNotFound), "未加入时心跳返回 404")

	_, err = e.clients["bob"].Preview(ctx, room.Code)
	assert.True(t, syncclient.IsStatus(err, http.StatusNotFound))
}
