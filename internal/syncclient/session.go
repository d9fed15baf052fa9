package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gogpu/gg/text"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/dto"
	"collaborative-canvas/internal/render"
)

// 默认轮询间隔
const (
	DefaultCanvasInterval    = 2 * time.Second
	DefaultRosterInterval    = 5 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHistoryLimit      = 50
)

// Config 配置 Session
type Config struct {
	CanvasInterval    time.Duration
	RosterInterval    time.Duration
	HeartbeatInterval time.Duration
	Width, Height     int
	HistoryLimit      int
	Font              *text.FontSource // 绘制 emoji 用，可为 nil
	PushNotices       bool             // 订阅 WebSocket 提示，收到后立即轮询一次
}

func (c Config) withDefaults() Config {
	if c.CanvasInterval <= 0 {
		c.CanvasInterval = DefaultCanvasInterval
	}
	if c.RosterInterval <= 0 {
		c.RosterInterval = DefaultRosterInterval
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	return c
}

// Session 是一个用户在一个房间里的同步会话。
//
// 水位线 lastRendered 只取已重放事件的服务端时间戳，从不取本地时间。
// 画布始终等于按日志顺序重放已读取的事件，再叠加尚未读回的本地笔画。
// 本地笔画恰好按日志顺序读回时只推进水位线，否则按日志重画。
// 撤销和重做只恢复本地快照，不影响共享日志。
type Session struct {
	client *Client
	code   string
	cfg    Config
	log    *logrus.Entry

	mu           sync.Mutex
	surface      *render.Surface
	history      *render.History[render.Snapshot]
	events       []domain.CanvasEvent // 已重放的日志，按服务端顺序
	lastRendered *time.Time
	clearedAt    *time.Time
	local        []*localStroke // 已乐观绘制但尚未从轮询读回，按绘制顺序
	roster       []dto.ParticipantDTO

	onChange func()
	nudge    chan struct{}
}

// localStroke 是一笔本地绘制，服务端确认前 id 为 0
type localStroke struct {
	shape render.Shape
	id    uint
}

// NewSession 创建会话，画布初始为空白
func NewSession(client *Client, code string, cfg Config) *Session {
	if client == nil {
		panic("Client cannot be nil for Session")
	}
	cfg = cfg.withDefaults()
	var opts []render.SurfaceOption
	if cfg.Font != nil {
		opts = append(opts, render.WithEmojiFont(cfg.Font))
	}
	s := &Session{
		client:  client,
		code:    code,
		cfg:     cfg,
		log:     logrus.WithField("code", code),
		surface: render.NewSurface(cfg.Width, cfg.Height, opts...),
		history: render.NewHistory[render.Snapshot](cfg.HistoryLimit),
		nudge:   make(chan struct{}, 1),
	}
	s.history.Commit(s.surface.Snapshot())
	return s
}

// OnChange 注册画布或在线列表变化时的回调，回调在锁外执行
func (s *Session) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Session) changed() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Run 加入房间并运行三个定时循环，直到 ctx 结束。退出时尽力离开房间。
func (s *Session) Run(ctx context.Context) error {
	if _, err := s.client.Join(ctx, s.code); err != nil {
		return fmt.Errorf("join room %s: %w", s.code, err)
	}
	s.log.Info("Joined room, starting sync loops")
	defer func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.client.Leave(leaveCtx, s.code); err != nil {
			s.log.WithError(err).Warn("Failed to leave room")
		}
	}()

	if err := s.Sync(ctx); err != nil {
		s.log.WithError(err).Warn("Initial canvas sync failed")
	}
	if err := s.RefreshRoster(ctx); err != nil {
		s.log.WithError(err).Warn("Initial roster refresh failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.canvasLoop(gctx) })
	g.Go(func() error {
		return tick(gctx, s.cfg.RosterInterval, func() {
			if err := s.RefreshRoster(gctx); err != nil && gctx.Err() == nil {
				s.log.WithError(err).Warn("Roster refresh failed")
			}
		})
	})
	g.Go(func() error {
		return tick(gctx, s.cfg.HeartbeatInterval, func() {
			if err := s.heartbeat(gctx); err != nil && gctx.Err() == nil {
				s.log.WithError(err).Warn("Heartbeat failed")
			}
		})
	})
	if s.cfg.PushNotices {
		g.Go(func() error { return s.noticeLoop(gctx) })
	}
	return g.Wait()
}

// tick 每隔 interval 调用一次 fn，ctx 结束时返回 nil
func tick(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}

func (s *Session) canvasLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.CanvasInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-s.nudge:
		}
		// 失败只意味着暂时落后，下一轮从同一水位线重试
		if err := s.Sync(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("Canvas poll failed")
		}
	}
}

// noticeLoop 把推送提示转换为一次立即轮询，连接断开后回退为纯轮询
func (s *Session) noticeLoop(ctx context.Context) error {
	notices, err := s.client.Notices(ctx, s.code)
	if err != nil {
		s.log.WithError(err).Warn("Push notices unavailable, polling only")
		return nil
	}
	for range notices {
		select {
		case s.nudge <- struct{}{}:
		default:
		}
	}
	return nil
}

// heartbeat 发送心跳，服务端不认识本用户时重新加入
func (s *Session) heartbeat(ctx context.Context) error {
	err := s.client.Heartbeat(ctx, s.code)
	if IsStatus(err, http.StatusNotFound) {
		s.log.Info("Participant record missing, rejoining")
		_, err = s.client.Join(ctx, s.code)
	}
	return err
}

// Sync 执行一次增量轮询并重放新事件。
// 房间被清空过 (cleared-at 变化) 时重置本地状态，再从头读取完整日志。
func (s *Session) Sync(ctx context.Context) error {
	for attempt := 0; attempt < 2; attempt++ {
		s.mu.Lock()
		since := s.lastRendered
		s.mu.Unlock()

		res, err := s.client.FetchSince(ctx, s.code, since)
		if err != nil {
			return err
		}

		s.mu.Lock()
		if !sameInstant(res.ClearedAt, s.clearedAt) {
			s.clearedAt = res.ClearedAt
			if since != nil || len(s.events) > 0 || s.history.Len() > 1 {
				s.log.WithField("cleared_at", res.ClearedAt).Info("Room was cleared, resetting local canvas")
				s.resetLocked()
				s.mu.Unlock()
				s.changed()
				continue
			}
		}
		applied := s.applyLocked(res.Events)
		s.mu.Unlock()
		if applied > 0 {
			s.changed()
		}
		return nil
	}
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// applyLocked 按顺序重放事件并推进水位线，返回新读取的事件数量
func (s *Session) applyLocked(events []dto.CanvasEventDTO) int {
	fresh := make([]domain.CanvasEvent, 0, len(events))
	for _, e := range events {
		event := e.Event()
		if s.lastRendered != nil && !event.Timestamp.After(*s.lastRendered) {
			continue
		}
		fresh = append(fresh, event)
		ts := event.Timestamp
		s.lastRendered = &ts
	}
	if len(fresh) == 0 {
		return 0
	}
	s.events = append(s.events, fresh...)

	n := 0
	for n < len(fresh) && n < len(s.local) && s.local[n].id != 0 && s.local[n].id == fresh[n].ID {
		n++
	}
	rest := fresh[n:]
	if len(rest) == 0 || n == len(s.local) {
		s.local = s.local[n:]
		for i := range rest {
			if err := render.DrawEvent(s.surface, &rest[i]); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{"event_id": rest[i].ID, "tool": rest[i].Tool}).Debug("Skipping undrawable event")
			}
		}
		return len(fresh)
	}

	// 远端事件排在本地笔画之前，或者本地笔画在确认前就被读回
	seen := make(map[uint]struct{}, len(fresh))
	for _, e := range fresh {
		seen[e.ID] = struct{}{}
	}
	pending := s.local[:0]
	for _, l := range s.local {
		if _, ok := seen[l.id]; !ok {
			pending = append(pending, l)
		}
	}
	s.local = pending
	s.repaintLocked()
	s.history.Commit(s.surface.Snapshot())
	return len(fresh)
}

// repaintLocked 按日志顺序重画，再叠加尚未读回的本地笔画
func (s *Session) repaintLocked() {
	s.surface.Clear()
	render.Render(s.surface, s.events)
	for _, l := range s.local {
		_ = render.Draw(s.surface, l.shape)
	}
}

func (s *Session) removeLocalLocked(stroke *localStroke) bool {
	for i, l := range s.local {
		if l == stroke {
			s.local = append(s.local[:i], s.local[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) hasEventLocked(id uint) bool {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ID == id {
			return true
		}
	}
	return false
}

// resetLocked 回到空白画布和空水位线
func (s *Session) resetLocked() {
	s.surface.Clear()
	s.history.Reset()
	s.history.Commit(s.surface.Snapshot())
	s.events = nil
	s.lastRendered = nil
	s.local = nil
}

// Draw 在本地立即绘制，然后提交给服务端。
// 服务端拒绝 (4xx) 时撤掉这笔乐观绘制，按已读取的日志重画。
func (s *Session) Draw(ctx context.Context, tool domain.Tool, data json.RawMessage) (*dto.CanvasEventDTO, error) {
	shape, err := render.Decode(tool, data)
	if err != nil {
		return nil, err
	}

	stroke := &localStroke{shape: shape}
	s.mu.Lock()
	if err := render.Draw(s.surface, shape); err != nil {
		s.log.WithError(err).WithField("tool", tool).Debug("Local draw produced no stroke")
	}
	s.local = append(s.local, stroke)
	s.history.Commit(s.surface.Snapshot())
	s.mu.Unlock()
	s.changed()

	event, err := s.client.Append(ctx, s.code, tool, data)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			s.mu.Lock()
			s.removeLocalLocked(stroke)
			s.repaintLocked()
			s.history.Reset()
			s.history.Commit(s.surface.Snapshot())
			s.mu.Unlock()
			s.changed()
		}
		return nil, err
	}

	s.mu.Lock()
	repainted := false
	if s.hasEventLocked(event.ID) {
		// 轮询先于响应读回了这一笔，画布上画了两次
		if s.removeLocalLocked(stroke) {
			s.repaintLocked()
			s.history.Commit(s.surface.Snapshot())
			repainted = true
		}
	} else {
		stroke.id = event.ID
	}
	s.mu.Unlock()
	if repainted {
		s.changed()
	}
	return event, nil
}

// Rebuild 丢弃本地绘制和撤销历史，按服务端顺序重放已读取的日志
func (s *Session) Rebuild() {
	s.mu.Lock()
	s.local = nil
	s.repaintLocked()
	s.history.Reset()
	s.history.Commit(s.surface.Snapshot())
	s.mu.Unlock()
	s.changed()
}

// Undo 恢复上一个本地快照，已在最早位置时返回 false
func (s *Session) Undo() bool {
	s.mu.Lock()
	snap, ok := s.history.Undo()
	if ok {
		s.surface.Restore(snap)
	}
	s.mu.Unlock()
	if ok {
		s.changed()
	}
	return ok
}

// Redo 恢复下一个本地快照，已在最新位置时返回 false
func (s *Session) Redo() bool {
	s.mu.Lock()
	snap, ok := s.history.Redo()
	if ok {
		s.surface.Restore(snap)
	}
	s.mu.Unlock()
	if ok {
		s.changed()
	}
	return ok
}

// RefreshRoster 整体替换在线列表
func (s *Session) RefreshRoster(ctx context.Context) error {
	roster, err := s.client.Participants(ctx, s.code)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.roster = roster
	s.mu.Unlock()
	s.changed()
	return nil
}

// Roster 返回在线列表的副本
func (s *Session) Roster() []dto.ParticipantDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dto.ParticipantDTO(nil), s.roster...)
}

// LastRendered 返回当前水位线，尚未重放任何事件时为 nil
func (s *Session) LastRendered() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRendered == nil {
		return nil
	}
	t := *s.lastRendered
	return &t
}

// EventIDs 返回已重放事件的 id，按服务端顺序
func (s *Session) EventIDs() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.events))
	for _, e := range s.events {
		ids = append(ids, e.ID)
	}
	return ids
}

// Snapshot 返回当前画布的像素副本
func (s *Session) Snapshot() render.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Snapshot()
}

// WritePNG 把当前画布编码为 PNG
func (s *Session) WritePNG(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.EncodePNG(w)
}

// Close 释放画布资源
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Close()
}
