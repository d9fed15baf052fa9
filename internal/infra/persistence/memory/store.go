// Package memory 提供基于进程内存的存储实现，用于测试和 DB_DRIVER=memory 的单机运行。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// Store 持有全部表数据，由一把读写锁保护。
// 各个 Repository 只是 Store 的视图，共享同一份数据，ClearRoom 因此可以原子地同时修改事件和房间。
type Store struct {
	mu sync.RWMutex

	rooms        map[uint]domain.Room
	events       map[uint][]domain.CanvasEvent // roomID -> events
	participants map[uint]map[string]domain.Participant
	previews     map[uint][]byte

	nextRoomID        uint
	nextEventID       uint
	nextParticipantID uint
}

// NewStore 创建空的内存存储
func NewStore() *Store {
	return &Store{
		rooms:        make(map[uint]domain.Room),
		events:       make(map[uint][]domain.CanvasEvent),
		participants: make(map[uint]map[string]domain.Participant),
		previews:     make(map[uint][]byte),
	}
}

// Rooms 返回 RoomRepository 视图
func (s *Store) Rooms() *RoomRepository { return &RoomRepository{s: s} }

// Events 返回 EventRepository 视图
func (s *Store) Events() *EventRepository { return &EventRepository{s: s} }

// Participants 返回 ParticipantRepository 视图
func (s *Store) Participants() *ParticipantRepository { return &ParticipantRepository{s: s} }

// Previews 返回 PreviewStore 视图
func (s *Store) Previews() *PreviewStore { return &PreviewStore{s: s} }

// --- rooms ---

type RoomRepository struct{ s *Store }

var _ repository.RoomRepository = (*RoomRepository)(nil)

func (r *RoomRepository) FindByID(_ context.Context, id uint) (*domain.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	room, ok := r.s.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return &room, nil
}

func (r *RoomRepository) FindByCode(_ context.Context, code string) (*domain.Room, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, room := range r.s.rooms {
		if room.Code == code {
			found := room
			return &found, nil
		}
	}
	return nil, repository.ErrRoomNotFound
}

func (r *RoomRepository) Create(_ context.Context, room *domain.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.rooms {
		if existing.Code == room.Code {
			return repository.ErrDuplicateEntry
		}
	}
	r.s.nextRoomID++
	now := time.Now()
	room.ID = r.s.nextRoomID
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}
	room.UpdatedAt = now
	r.s.rooms[room.ID] = *room
	return nil
}

func (r *RoomRepository) Save(_ context.Context, room *domain.Room) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.rooms[room.ID]
	if !ok {
		return repository.ErrRoomNotFound
	}
	stored.IsPublic = room.IsPublic
	stored.AllowDrawing = room.AllowDrawing
	stored.UpdatedAt = time.Now()
	r.s.rooms[room.ID] = stored
	*room = stored
	return nil
}

func (r *RoomRepository) IsCodeExists(_ context.Context, code string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, room := range r.s.rooms {
		if room.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// --- events ---

type EventRepository struct{ s *Store }

var _ repository.EventRepository = (*EventRepository)(nil)

func (r *EventRepository) Append(_ context.Context, event *domain.CanvasEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rooms[event.RoomID]; !ok {
		return repository.ErrRoomNotFound
	}
	r.s.nextEventID++
	event.ID = r.s.nextEventID
	r.s.events[event.RoomID] = append(r.s.events[event.RoomID], *event)
	return nil
}

func (r *EventRepository) FetchSince(_ context.Context, roomID uint, since *time.Time) ([]domain.CanvasEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make([]domain.CanvasEvent, 0, len(r.s.events[roomID]))
	for _, e := range r.s.events[roomID] {
		if since == nil || e.Timestamp.After(*since) {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Before(&result[j]) })
	return result, nil
}

func (r *EventRepository) ClearRoom(_ context.Context, roomID uint, clearedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.rooms[roomID]
	if !ok {
		return repository.ErrRoomNotFound
	}
	delete(r.s.events, roomID)
	at := clearedAt
	room.ClearedAt = &at
	room.UpdatedAt = clearedAt
	r.s.rooms[roomID] = room
	return nil
}

// --- participants ---

type ParticipantRepository struct{ s *Store }

var _ repository.ParticipantRepository = (*ParticipantRepository)(nil)

func (r *ParticipantRepository) Upsert(_ context.Context, p *domain.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	byUser, ok := r.s.participants[p.RoomID]
	if !ok {
		byUser = make(map[string]domain.Participant)
		r.s.participants[p.RoomID] = byUser
	}
	if existing, ok := byUser[p.UserID]; ok {
		if p.LastSeen.After(existing.LastSeen) {
			existing.LastSeen = p.LastSeen
		}
		byUser[p.UserID] = existing
		*p = existing
		return nil
	}
	r.s.nextParticipantID++
	p.ID = r.s.nextParticipantID
	if p.JoinedAt.IsZero() {
		p.JoinedAt = p.LastSeen
	}
	byUser[p.UserID] = *p
	return nil
}

func (r *ParticipantRepository) Touch(_ context.Context, roomID uint, userID string, seen time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.participants[roomID][userID]
	if !ok {
		return repository.ErrParticipantNotFound
	}
	if seen.After(existing.LastSeen) {
		existing.LastSeen = seen
		r.s.participants[roomID][userID] = existing
	}
	return nil
}

func (r *ParticipantRepository) Delete(_ context.Context, roomID uint, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.participants[roomID], userID)
	return nil
}

func (r *ParticipantRepository) ListActiveSince(_ context.Context, roomID uint, cutoff time.Time) ([]domain.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	result := make([]domain.Participant, 0)
	for _, p := range r.s.participants[roomID] {
		if p.ActiveSince(cutoff) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].JoinedAt.Equal(result[j].JoinedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

// --- previews ---

type PreviewStore struct{ s *Store }

var _ repository.PreviewStore = (*PreviewStore)(nil)

func (r *PreviewStore) PutPreview(_ context.Context, roomID uint, png []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.previews[roomID] = append([]byte(nil), png...)
	return nil
}

func (r *PreviewStore) GetPreview(_ context.Context, roomID uint) ([]byte, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	png, ok := r.s.previews[roomID]
	if !ok {
		return nil, repository.ErrPreviewNotFound
	}
	return append([]byte(nil), png...), nil
}
