package reliability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"desklink/internal/core/domain"
	"desklink/pkg/circuitbreaker"
	"desklink/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type flakyDirectory struct {
	mu          sync.Mutex
	failures    int
	memberCalls int
	registered  []domain.ParticipantID
}

var errBackend = errors.New("backend down")

func (f *flakyDirectory) takeFailure() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return true
	}
	return false
}

func (f *flakyDirectory) Register(_ context.Context, participant *domain.Participant) error {
	if f.takeFailure() {
		return errBackend
	}
	f.mu.Lock()
	f.registered = append(f.registered, participant.ID)
	f.mu.Unlock()
	return nil
}

func (f *flakyDirectory) Deregister(context.Context, domain.SessionID, domain.ParticipantID) error {
	if f.takeFailure() {
		return errBackend
	}
	return nil
}

func (f *flakyDirectory) Get(context.Context, domain.SessionID, domain.ParticipantID) (*domain.Participant, error) {
	if f.takeFailure() {
		return nil, errBackend
	}
	return &domain.Participant{ID: "part_a"}, nil
}

func (f *flakyDirectory) Members(context.Context, domain.SessionID) ([]*domain.Participant, error) {
	f.mu.Lock()
	f.memberCalls++
	f.mu.Unlock()
	if f.takeFailure() {
		return nil, errBackend
	}
	return []*domain.Participant{{ID: "part_a"}}, nil
}

func (f *flakyDirectory) Sessions(context.Context) ([]domain.SessionID, error) {
	return []domain.SessionID{"sess_1"}, nil
}

func (f *flakyDirectory) Touch(context.Context, domain.SessionID, domain.ParticipantID) error {
	if f.takeFailure() {
		return errBackend
	}
	return nil
}

func newTestWrapper(t *testing.T, backend *flakyDirectory) *DirectoryWrapper {
	t.Helper()
	retryCfg := retry.Config{
		Enabled:      true,
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
	wrapper := NewDirectoryWrapper(backend, retryCfg, circuitbreaker.DefaultConfig(), zaptest.NewLogger(t).Sugar())
	t.Cleanup(wrapper.Stop)
	return wrapper
}

func TestDirectoryWrapper_RegisterRetriesTransientFailure(t *testing.T) {
	backend := &flakyDirectory{failures: 2}
	wrapper := newTestWrapper(t, backend)

	err := wrapper.Register(context.Background(), &domain.Participant{ID: "part_a", SessionID: "sess_1"})
	require.NoError(t, err)
	assert.Equal(t, []domain.ParticipantID{"part_a"}, backend.registered)
}

func TestDirectoryWrapper_MembersReadThroughCache(t *testing.T) {
	backend := &flakyDirectory{}
	wrapper := newTestWrapper(t, backend)
	ctx := context.Background()

	first, err := wrapper.Members(ctx, "sess_1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Second read inside the TTL never reaches the backend.
	_, err = wrapper.Members(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.memberCalls)

	// Registration invalidates the cached member list.
	require.NoError(t, wrapper.Register(ctx, &domain.Participant{ID: "part_b", SessionID: "sess_1"}))
	_, err = wrapper.Members(ctx, "sess_1")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.memberCalls)
}

func TestDirectoryWrapper_TouchDoesNotRetry(t *testing.T) {
	backend := &flakyDirectory{failures: 1}
	wrapper := newTestWrapper(t, backend)

	assert.ErrorIs(t, wrapper.Touch(context.Background(), "sess_1", "part_a"), errBackend)
	assert.NoError(t, wrapper.Touch(context.Background(), "sess_1", "part_a"))
}
