package directory

import (
	"context"
	"testing"
	"time"

	"desklink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participant(id domain.ParticipantID, session domain.SessionID, role domain.Role) *domain.Participant {
	return &domain.Participant{
		ID:        id,
		SessionID: session,
		Role:      role,
		JoinedAt:  time.Now(),
	}
}

func TestMemoryDirectory_RegisterAndGet(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, participant("part_host", "sess_1", domain.RoleHost)))

	got, err := dir.Get(ctx, "sess_1", "part_host")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleHost, got.Role)
	assert.False(t, got.LastSeen.IsZero())

	// Re-registering replaces the record.
	require.NoError(t, dir.Register(ctx, participant("part_host", "sess_1", domain.RoleController)))
	got, err = dir.Get(ctx, "sess_1", "part_host")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleController, got.Role)

	_, err = dir.Get(ctx, "sess_1", "part_ghost")
	assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	_, err = dir.Get(ctx, "sess_x", "part_host")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMemoryDirectory_MembersSorted(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, participant("part_c", "sess_1", domain.RoleController)))
	require.NoError(t, dir.Register(ctx, participant("part_a", "sess_1", domain.RoleHost)))
	require.NoError(t, dir.Register(ctx, participant("part_b", "sess_2", domain.RoleHost)))

	members, err := dir.Members(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, domain.ParticipantID("part_a"), members[0].ID)
	assert.Equal(t, domain.ParticipantID("part_c"), members[1].ID)

	empty, err := dir.Members(ctx, "sess_unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)

	sessions, err := dir.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SessionID{"sess_1", "sess_2"}, sessions)
}

func TestMemoryDirectory_DeregisterRemovesEmptySession(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, participant("part_a", "sess_1", domain.RoleHost)))
	require.NoError(t, dir.Deregister(ctx, "sess_1", "part_a"))

	sessions, err := dir.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.ErrorIs(t, dir.Deregister(ctx, "sess_1", "part_a"), domain.ErrSessionNotFound)
}

func TestMemoryDirectory_Touch(t *testing.T) {
	dir := NewMemoryDirectory()
	ctx := context.Background()

	require.NoError(t, dir.Register(ctx, participant("part_a", "sess_1", domain.RoleHost)))
	before, err := dir.Get(ctx, "sess_1", "part_a")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, dir.Touch(ctx, "sess_1", "part_a"))

	after, err := dir.Get(ctx, "sess_1", "part_a")
	require.NoError(t, err)
	assert.True(t, after.LastSeen.After(before.LastSeen))

	assert.ErrorIs(t, dir.Touch(ctx, "sess_1", "part_b"), domain.ErrParticipantNotFound)
}
