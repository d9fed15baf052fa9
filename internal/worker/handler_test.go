package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/infra/persistence/memory"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/tasks"
	"collaborative-canvas/internal/worker"
)

type recordingClearer struct {
	cleared []uint
	err     error
}

func (r *recordingClearer) ClearPreviewPending(_ context.Context, roomID uint) error {
	r.cleared = append(r.cleared, roomID)
	return r.err
}

type failingRenderer struct{ err error }

func (f failingRenderer) RenderRoom(context.Context, uint) ([]byte, error) { return nil, f.err }

func newPreviewFixture(t *testing.T) (*memory.Store, *service.PreviewService, *domain.Room) {
	t.Helper()
	logrus.SetLevel(logrus.WarnLevel)
	ctx := context.Background()
	store := memory.NewStore()

	room := &domain.Room{Code: "ABC123", CreatorID: "alice", AllowDrawing: true}
	require.NoError(t, store.Rooms().Create(ctx, room))
	require.NoError(t, store.Events().Append(ctx, &domain.CanvasEvent{
		RoomID:    room.ID,
		AuthorID:  "alice",
		Tool:      domain.ToolRectangle,
		Data:      `{"x":4,"y":4,"width":20,"height":10}`,
		Timestamp: time.Now().UTC(),
	}))

	previews := service.NewPreviewService(store.Rooms(), store.Events(), store.Previews(), 64, 48, nil)
	return store, previews, room
}

func TestPreviewRenderHandler_RendersAndClearsPending(t *testing.T) {
	// Arrange
	store, previews, room := newPreviewFixture(t)
	clearer := &recordingClearer{}
	handler := worker.NewPreviewRenderHandler(previews, clearer)
	task, err := tasks.NewPreviewRenderTask(room.ID, time.Now())
	require.NoError(t, err)

	// Act
	err = handler.ProcessTask(context.Background(), task)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []uint{room.ID}, clearer.cleared)
	png, err := store.Previews().GetPreview(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestPreviewRenderHandler_ClearFailureStillRenders(t *testing.T) {
	store, previews, room := newPreviewFixture(t)
	handler := worker.NewPreviewRenderHandler(previews, &recordingClearer{err: errors.New("redis down")})
	task, _ := tasks.NewPreviewRenderTask(room.ID, time.Now())

	require.NoError(t, handler.ProcessTask(context.Background(), task))
	_, err := store.Previews().GetPreview(context.Background(), room.ID)
	assert.NoError(t, err)
}

func TestPreviewRenderHandler_BadPayloadSkipsRetry(t *testing.T) {
	_, previews, _ := newPreviewFixture(t)
	handler := worker.NewPreviewRenderHandler(previews, nil)

	err := handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypePreviewRender, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPreviewRenderHandler_UnknownRoomSkipsRetry(t *testing.T) {
	_, previews, _ := newPreviewFixture(t)
	handler := worker.NewPreviewRenderHandler(previews, nil)
	task, _ := tasks.NewPreviewRenderTask(999, time.Now())

	err := handler.ProcessTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPreviewRenderHandler_TransientErrorRetries(t *testing.T) {
	handler := worker.NewPreviewRenderHandler(failingRenderer{err: service.ErrInternalServer}, nil)
	task, _ := tasks.NewPreviewRenderTask(1, time.Now())

	err := handler.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestWorkerServer_MuxRoutesPreviewTasks(t *testing.T) {
	store, previews, room := newPreviewFixture(t)
	ws := worker.NewWorkerServer(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, 1,
		worker.NewPreviewRenderHandler(previews, nil), logrus.New())
	task, _ := tasks.NewPreviewRenderTask(room.ID, time.Now())

	require.NoError(t, ws.Mux().ProcessTask(context.Background(), task))
	_, err := store.Previews().GetPreview(context.Background(), room.ID)
	assert.NoError(t, err)
}
