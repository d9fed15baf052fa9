package service_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/service"
)

func TestPresenceService_Window(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)

	joinedAt := f.clock.Now()
	_, err = f.presence.Join(ctx, room.ID, "bob")
	require.NoError(t, err)

	window := 5 * time.Minute
	in, err := f.presence.ActiveParticipants(ctx, room.ID, joinedAt.Add(4*time.Minute+59*time.Second), window)
	require.NoError(t, err)
	assert.Len(t, in, 2)

	out, err := f.presence.ActiveParticipants(ctx, room.ID, joinedAt.Add(5*time.Minute+time.Second), window)
	require.NoError(t, err)
	assert.Empty(t, out)

	// 窗口边界包含在内
	edge, err := f.presence.ActiveParticipants(ctx, room.ID, joinedAt.Add(window), 0)
	require.NoError(t, err)
	assert.Len(t, edge, 2)
}

func TestPresenceService_HeartbeatKeepsAlive(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)
	_, err = f.presence.Join(ctx, room.ID, "bob")
	require.NoError(t, err)

	f.clock.Advance(4 * time.Minute)
	require.NoError(t, f.presence.Heartbeat(ctx, room.ID, "bob"))
	f.clock.Advance(3 * time.Minute)

	active, err := f.presence.ActiveNow(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, active, 1, "alice went silent, bob heartbeated")
	assert.Equal(t, "bob", active[0].UserID)

	// 窗口外的用户重新心跳后立即恢复，无需重新加入
	require.NoError(t, f.presence.Heartbeat(ctx, room.ID, "alice"))
	active, err = f.presence.ActiveNow(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Equal(t, "alice", active[0].UserID, "ordered by join time")
}

func TestPresenceService_HeartbeatRequiresJoin(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)

	err = f.presence.Heartbeat(ctx, room.ID, "stranger")
	assert.ErrorIs(t, err, service.ErrNotParticipant)
}

func TestPresenceService_JoinIsIdempotent(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)

	first, err := f.presence.Join(ctx, room.ID, "bob")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	second, err := f.presence.Join(ctx, room.ID, "bob")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.JoinedAt.Equal(first.JoinedAt))
	assert.True(t, second.LastSeen.After(first.LastSeen))

	active, err := f.presence.ActiveNow(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestPresenceService_JoinUnknownRoom(t *testing.T) {
	f := newFixture(t)
	_, err := f.presence.Join(ctx, 42, "bob")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestPresenceService_Leave(t *testing.T) {
	f := newFixture(t)
	room, err := f.rooms.CreateRoom(ctx, "alice", true, true)
	require.NoError(t, err)
	_, err = f.presence.Join(ctx, room.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, f.presence.Leave(ctx, room.ID, "bob"))
	require.NoError(t, f.presence.Leave(ctx, room.ID, "bob"), "leaving twice is fine")

	active, err := f.presence.ActiveNow(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "alice", active[0].UserID)
	assert.ErrorIs(t, f.presence.Heartbeat(ctx, room.ID, "bob"), service.ErrNotParticipant)
}
